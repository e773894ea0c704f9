package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/apex/log"
	"github.com/forest-guardian/ecosystem-dashboard/internal/analysis"
	"github.com/forest-guardian/ecosystem-dashboard/internal/chat"
	"github.com/forest-guardian/ecosystem-dashboard/internal/polygon"
	"github.com/forest-guardian/ecosystem-dashboard/internal/properties"
	"github.com/forest-guardian/ecosystem-dashboard/internal/report"
	"github.com/forest-guardian/ecosystem-dashboard/internal/vector"
	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
)

type polygonResponse struct {
	Session string     `json:"session"`
	AreaHa  float64    `json:"area_ha"`
	Bounds  [4]float64 `json:"bounds"`
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
}

// streamChunk is one line of the NDJSON chat response.
type streamChunk struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
	Error   string `json:"error,omitempty"`
}

func errorJSON(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) listLayers(c *gin.Context) {
	c.JSON(http.StatusOK, s.config.Layers)
}

func (s *Server) installPolygon(c *gin.Context, g orb.Geometry) {
	session := sessionFrom(c)
	if err := session.Analysis.SetPolygon(g); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	b := polygon.Bounds(g)
	log.WithFields(log.Fields{"session": session.ID, "area_ha": polygon.AreaHa(g)}).Info("polygon loaded")
	c.JSON(http.StatusOK, polygonResponse{
		Session: session.ID,
		AreaHa:  polygon.AreaHa(g),
		Bounds:  [4]float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()},
	})
}

func (s *Server) setPolygon(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	g, err := polygon.FromGeoJSON(data)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	s.installPolygon(c, g)
}

func (s *Server) uploadPolygon(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Errorf("missing file: %w", err))
		return
	}

	var g orb.Geometry
	switch ext := strings.ToLower(filepath.Ext(file.Filename)); ext {
	case ".zip":
		index, err := strconv.Atoi(c.DefaultPostForm("index", "0"))
		if err != nil || index < 0 {
			errorJSON(c, http.StatusBadRequest, errors.New("index must be a non-negative integer"))
			return
		}
		dir, err := os.MkdirTemp("", "upload-*")
		if err != nil {
			errorJSON(c, http.StatusInternalServerError, err)
			return
		}
		defer os.RemoveAll(dir)
		path := filepath.Join(dir, "polygon.zip")
		if err := c.SaveUploadedFile(file, path); err != nil {
			errorJSON(c, http.StatusInternalServerError, err)
			return
		}
		g, err = polygon.FromShapefileZip(path, index)
		if err != nil {
			errorJSON(c, http.StatusBadRequest, err)
			return
		}
	case ".csv", ".geojson", ".json":
		f, err := file.Open()
		if err != nil {
			errorJSON(c, http.StatusBadRequest, err)
			return
		}
		defer f.Close()
		if ext == ".csv" {
			g, err = polygon.FromCoordinateTable(f)
		} else {
			var data []byte
			if data, err = io.ReadAll(f); err == nil {
				g, err = polygon.FromGeoJSON(data)
			}
		}
		if err != nil {
			errorJSON(c, http.StatusBadRequest, err)
			return
		}
	default:
		errorJSON(c, http.StatusBadRequest, fmt.Errorf("unsupported file type %q", ext))
		return
	}
	s.installPolygon(c, g)
}

func (s *Server) getPolygon(c *gin.Context) {
	g := sessionFrom(c).Analysis.Polygon()
	if g == nil {
		errorJSON(c, http.StatusNotFound, analysis.ErrNoPolygon)
		return
	}
	data, err := polygon.ToGeoJSON(g)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "application/geo+json", data)
}

func (s *Server) clearPolygon(c *gin.Context) {
	sessionFrom(c).Analysis.ClearPolygon()
	c.Status(http.StatusNoContent)
}

func (s *Server) runDiagnostic(c *gin.Context) {
	session := sessionFrom(c)
	if !session.beginRun() {
		errorJSON(c, http.StatusConflict, errors.New("a diagnostic is already running"))
		return
	}
	defer session.endRun()

	result, err := s.config.Runner.Run(c.Request.Context(), session.Analysis)
	switch {
	case errors.Is(err, analysis.ErrNoPolygon):
		errorJSON(c, http.StatusBadRequest, err)
	case errors.Is(err, analysis.ErrPolygonChanged):
		errorJSON(c, http.StatusConflict, err)
	case err != nil:
		errorJSON(c, http.StatusInternalServerError, err)
	default:
		c.JSON(http.StatusOK, result)
	}
}

func (s *Server) getContext(c *gin.Context) {
	c.JSON(http.StatusOK, sessionFrom(c).Analysis.Context())
}

func (s *Server) layerSummary(c *gin.Context) {
	layer, ok := properties.LayerByID(s.config.Layers, c.Param("id"))
	if !ok {
		errorJSON(c, http.StatusNotFound, vector.ErrLayerNotFound)
		return
	}
	session := sessionFrom(c)
	g := session.Analysis.Polygon()
	if g == nil {
		errorJSON(c, http.StatusBadRequest, analysis.ErrNoPolygon)
		return
	}
	if s.config.VectorSource == nil {
		errorJSON(c, http.StatusServiceUnavailable, vector.ErrSourceMissing)
		return
	}

	aggregator := vector.NewAggregator(s.config.VectorSource, s.config.Layers, session.Analysis.VectorCache).WithMode(s.config.VectorMode)
	summary, location, err := aggregator.SummarizeLayer(c.Request.Context(), g, layer.ID)
	if err != nil {
		errorJSON(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, vector.Result{Summary: summary, Location: location})
}

func (s *Server) getTranscript(c *gin.Context) {
	assistant := sessionFrom(c).Assistant
	c.JSON(http.StatusOK, gin.H{
		"state":      assistant.State().String(),
		"transcript": assistant.Transcript(),
	})
}

func writeStreamChunk(w gin.ResponseWriter, chunk streamChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return err
	}
	w.Flush()
	return nil
}

func (s *Server) ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	stream, err := sessionFrom(c).Assistant.Ask(c.Request.Context(), req.Question)
	switch {
	case errors.Is(err, chat.ErrEmptyQuestion):
		errorJSON(c, http.StatusBadRequest, err)
		return
	case errors.Is(err, chat.ErrBusy):
		errorJSON(c, http.StatusConflict, err)
		return
	case errors.Is(err, chat.ErrMissingAPIKey):
		errorJSON(c, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		errorJSON(c, http.StatusBadGateway, err)
		return
	}
	defer stream.Close()

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	for {
		chunk, ok := stream.Next(ctx)
		if !ok {
			break
		}
		if err := writeStreamChunk(c.Writer, streamChunk{Content: chunk}); err != nil {
			log.WithError(err).Debug("client went away during chat stream")
			return
		}
	}

	final := streamChunk{Done: true}
	if err := stream.Err(); err != nil {
		final.Error = err.Error()
	}
	_ = writeStreamChunk(c.Writer, final)
}

func (s *Server) resetChat(c *gin.Context) {
	sessionFrom(c).Assistant.Reset()
	c.Status(http.StatusNoContent)
}

func (s *Server) downloadReport(c *gin.Context) {
	now := s.config.Now()
	var buf bytes.Buffer
	err := report.Generate(c.Request.Context(), sessionFrom(c).Analysis.Context(), &buf, now)
	if errors.Is(err, report.ErrNotProcessed) {
		errorJSON(c, http.StatusNotFound, err)
		return
	}
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="reporte_%s.html"`, now.Format("20060102_150405")))
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}
