package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/agenthands/bayesnet/internal/config"
	"github.com/agenthands/bayesnet/internal/core"
	"github.com/agenthands/bayesnet/internal/core/model"
	"github.com/agenthands/bayesnet/internal/core/summary"
	"github.com/agenthands/bayesnet/internal/dataset"
	"github.com/agenthands/bayesnet/internal/driver"
	"github.com/agenthands/bayesnet/internal/llm"
	"github.com/agenthands/bayesnet/internal/loader"
	"github.com/agenthands/bayesnet/internal/metrics"
	"github.com/agenthands/bayesnet/internal/report"
)

type Server struct {
	Network  *core.Network
	Narrator *summary.Narrator
	Gatherer prometheus.Gatherer
}

// NewServer fits the configured network and connects the optional graph
// database and LLM. Failing to reach either optional service is logged, not fatal.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	network, err := core.FromConfig(cfg, metrics.New(registry))
	if err != nil {
		return nil, err
	}
	def, err := loader.FromConfig(cfg.Network)
	if err != nil {
		return nil, err
	}
	var data *dataset.Dataset
	if cfg.Data.Path != "" {
		if data, err = core.LoadData(ctx, cfg.Data); err != nil {
			return nil, err
		}
	}
	if _, err := network.Fit(ctx, def, data); err != nil {
		return nil, err
	}

	if cfg.Memgraph.URI != "" {
		d, err := driver.NewMemgraphDriver(ctx, cfg.Memgraph.URI, cfg.Memgraph.User, cfg.Memgraph.Password)
		if err != nil {
			log.WithFields(log.Fields{"uri": cfg.Memgraph.URI, "error": err}).Warn("Failed to connect to Memgraph, graph publishing disabled")
		} else {
			network.Driver = d
			if err := d.BuildIndices(ctx); err != nil {
				log.WithFields(log.Fields{"error": err}).Warn("Failed to build indices")
			}
			if err := network.Publish(ctx); err != nil {
				log.WithFields(log.Fields{"error": err}).Warn("Failed to publish network")
			}
		}
	}

	srv := &Server{Network: network, Gatherer: registry}
	client, err := llm.NewClient(ctx, cfg.LLM)
	switch {
	case errors.Is(err, llm.ErrNoProvider):
		log.Info("No LLM provider configured, /explain disabled")
	case err != nil:
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	default:
		srv.Narrator = summary.NewNarrator(client, cfg.LLM.Prompt)
	}
	return srv, nil
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.Health)
	r.GET("/model", s.GetModel)
	r.GET("/cpds/:node", s.GetCPD)
	r.GET("/check", s.Check)
	r.POST("/query", s.Query)
	r.POST("/explain", s.Explain)
	r.POST("/publish", s.Publish)
	if s.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFitted):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrInconsistentEvidence):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrUnknownVariable),
		errors.Is(err, model.ErrUnknownValue),
		errors.Is(err, model.ErrInvalidQuery):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithFields(log.Fields{"path": c.FullPath(), "error": err}).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "fitted": s.Network.Model() != nil})
}

type NodeResponse struct {
	Name    string   `json:"name"`
	States  []string `json:"states"`
	Parents []string `json:"parents"`
}

func (s *Server) GetModel(c *gin.Context) {
	m := s.Network.Model()
	if m == nil {
		s.fail(c, core.ErrNotFitted)
		return
	}
	if c.Query("format") == "yaml" {
		var buf bytes.Buffer
		if err := loader.WriteYAML(&buf, loader.Export(m)); err != nil {
			s.fail(c, err)
			return
		}
		c.Data(http.StatusOK, "application/yaml", buf.Bytes())
		return
	}

	st := m.Structure()
	nodes := make([]NodeResponse, 0, st.Len())
	for _, name := range st.Nodes() {
		states, _ := st.Registry().DomainOf(name)
		parents, _ := st.ParentsOf(name)
		nodes = append(nodes, NodeResponse{Name: name, States: states, Parents: parents})
	}
	warnings := make([]string, 0)
	for _, w := range m.Warnings() {
		warnings = append(warnings, w.String())
	}
	c.JSON(http.StatusOK, gin.H{
		"model_id":    m.ID(),
		"fingerprint": strconv.FormatUint(m.Fingerprint(), 16),
		"nodes":       nodes,
		"warnings":    warnings,
	})
}

type CPDRowResponse struct {
	Combination   map[string]string  `json:"combination"`
	Probabilities map[string]float64 `json:"probabilities"`
}

func (s *Server) GetCPD(c *gin.Context) {
	m := s.Network.Model()
	if m == nil {
		s.fail(c, core.ErrNotFitted)
		return
	}
	cpd, err := m.CPD(c.Param("node"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if c.Query("format") == "text" {
		var buf bytes.Buffer
		report.WriteCPD(&buf, cpd)
		c.String(http.StatusOK, buf.String())
		return
	}

	rows := make([]CPDRowResponse, cpd.NumRows())
	for i := range rows {
		probs := make(map[string]float64, cpd.Node.Card())
		for k, p := range cpd.Row(i) {
			probs[cpd.Node.States[k]] = p
		}
		rows[i] = CPDRowResponse{Combination: cpd.CombinationNames(i), Probabilities: probs}
	}
	warnings := make([]string, 0, len(cpd.Warnings))
	for _, w := range cpd.Warnings {
		warnings = append(warnings, w.String())
	}
	c.JSON(http.StatusOK, gin.H{
		"node":     cpd.Node.Name,
		"states":   cpd.Node.States,
		"parents":  cpd.ParentNames(),
		"rows":     rows,
		"warnings": warnings,
	})
}

func (s *Server) Check(c *gin.Context) {
	err := s.Network.Check()
	if errors.Is(err, core.ErrNotFitted) {
		s.fail(c, err)
		return
	}
	var violations model.ValidationErrors
	if err != nil && !errors.As(err, &violations) {
		s.fail(c, err)
		return
	}
	messages := make([]string, 0, len(violations))
	for _, v := range violations {
		messages = append(messages, v.Error())
	}
	c.JSON(http.StatusOK, gin.H{"valid": err == nil, "violations": messages})
}

type QueryRequest struct {
	Targets  []string          `json:"targets" binding:"required"`
	Evidence map[string]string `json:"evidence"`
}

func (s *Server) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	res, err := s.Network.Query(c.Request.Context(), req.Targets, req.Evidence)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) Explain(c *gin.Context) {
	if s.Narrator == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no LLM provider configured"})
		return
	}
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	res, err := s.Network.Query(c.Request.Context(), req.Targets, req.Evidence)
	if err != nil {
		s.fail(c, err)
		return
	}
	q := summary.Query{Targets: req.Targets, Evidence: req.Evidence}
	exp, err := s.Narrator.Explain(c.Request.Context(), q, res.Distribution)
	if err != nil {
		log.WithFields(log.Fields{"query_id": res.QueryID, "error": err}).Error("Failed to explain result")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to explain result"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"query_id": res.QueryID, "explanation": exp, "distribution": res.Entries})
}

func (s *Server) Publish(c *gin.Context) {
	if s.Network.Driver == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no graph database configured"})
		return
	}
	if err := s.Network.Publish(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "model_id": s.Network.Model().ID()})
}
