package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/velinussage/pfp-animate/internal/domain"
	"github.com/velinussage/pfp-animate/internal/imaging"
	"github.com/velinussage/pfp-animate/internal/planner"
	"github.com/velinussage/pfp-animate/pkg/zip"
)

const manifestName = "manifest.json"

type exportFrame struct {
	Index       int    `json:"index"`
	ImageBase64 string `json:"imageBase64"`
}

type exportRequest struct {
	Prefix string        `json:"prefix"`
	XSteps int           `json:"xSteps"`
	YSteps int           `json:"ySteps"`
	Frames []exportFrame `json:"frames"`
}

type manifestFrame struct {
	Index int         `json:"index"`
	File  string      `json:"file"`
	Step  domain.Step `json:"step"`
}

type manifest struct {
	Prefix  string          `json:"prefix"`
	XSteps  int             `json:"xSteps"`
	YSteps  int             `json:"ySteps"`
	Total   int             `json:"total"`
	Frames  []manifestFrame `json:"frames"`
	Missing []int           `json:"missing"`
}

// Export bundles the frames of a finished grid into a zip archive named
// after the grid prefix. Frames not supplied are listed as missing.
func (a *App) Export(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeJSON(w, r, a.exportBodyLimit(), &req); err != nil {
		a.fail(w, r, err)
		return
	}
	jobs, err := a.Planner.Plan(req.XSteps, req.YSteps, req.Prefix)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	images, err := a.decodeFrames(req.Frames, len(jobs))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	prefix, _ := planner.NormalizePrefix(req.Prefix)
	m := manifest{
		Prefix:  prefix,
		XSteps:  req.XSteps,
		YSteps:  req.YSteps,
		Total:   len(jobs),
		Frames:  make([]manifestFrame, 0, len(images)),
		Missing: []int{},
	}
	assets := make([]zip.Asset, 0, len(images)+1)
	for _, job := range jobs {
		asset, ok := images[job.Index]
		if !ok {
			m.Missing = append(m.Missing, job.Index)
			continue
		}
		file := job.Step.Name + ".png"
		asset.Filename = file
		assets = append(assets, asset)
		m.Frames = append(m.Frames, manifestFrame{Index: job.Index, File: file, Step: job.Step})
	}
	manifestJSON, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	assets = append(assets, zip.Asset{Filename: manifestName, MIME: "application/json", Data: manifestJSON})

	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-grid.zip"`, prefix))
	w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

// decodeFrames validates submitted frames against a plan of total jobs and
// keys them by index. The decoded size of all frames is capped.
func (a *App) decodeFrames(frames []exportFrame, total int) (map[int]zip.Asset, error) {
	if len(frames) == 0 {
		return nil, domain.NewValidationError("frames", "must not be empty")
	}
	var size int64
	images := make(map[int]zip.Asset, len(frames))
	for i, frame := range frames {
		field := "frames[" + strconv.Itoa(i) + "]"
		if frame.Index < 0 || frame.Index >= total {
			return nil, domain.NewValidationError(field+".index", fmt.Sprintf("must be between 0 and %d", total-1))
		}
		if _, dup := images[frame.Index]; dup {
			return nil, domain.NewValidationError(field+".index", fmt.Sprintf("duplicate frame %d", frame.Index))
		}
		data, err := imaging.DecodeBase64(frame.ImageBase64)
		if err != nil {
			return nil, domain.NewValidationError(field+".imageBase64", "must be base64 encoded image data")
		}
		size += int64(len(data))
		if size > a.maxExportBytes() {
			return nil, &http.MaxBytesError{Limit: a.maxExportBytes()}
		}
		info, err := imaging.Inspect(data)
		if err != nil {
			return nil, domain.NewValidationError(field+".imageBase64", "is not a supported image")
		}
		images[frame.Index] = zip.Asset{MIME: info.MIME, Data: data}
	}
	return images, nil
}

// defaultMaxExportBytes applies when the config leaves the export cap unset.
const defaultMaxExportBytes = 64 << 20

func (a *App) maxExportBytes() int64 {
	if a.Config.MaxExportBytes > 0 {
		return a.Config.MaxExportBytes
	}
	return defaultMaxExportBytes
}

// exportBodyLimit bounds an export body by the base64 size of the decoded
// frame cap plus per-frame JSON framing.
func (a *App) exportBodyLimit() int64 {
	return a.maxExportBytes()/3*4 + int64(planner.MaxSteps*planner.MaxSteps)*64 + 64<<10
}
