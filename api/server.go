// Package api serves persisted comments and their analytics over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-scrape-reviews/analysis"
	"github.com/aluiziolira/go-scrape-reviews/models"
)

const (
	defaultLimit = 20
	maxLimit     = 200
)

// CommentReader is the read side of the comment store.
type CommentReader interface {
	All(ctx context.Context) ([]models.Comment, error)
	Page(ctx context.Context, skip, limit int64) ([]models.Comment, error)
	Count(ctx context.Context) (int64, error)
}

// Server exposes the comment collection and reports built from it.
type Server struct {
	Comments CommentReader
	Analysis analysis.Options
	Registry *prometheus.Registry
	Log      *zap.Logger
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	if s.Log == nil {
		s.Log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.health)
	r.GET("/comments", s.listComments) // ?page=1&limit=20
	r.GET("/report", s.report)
	r.GET("/report/ratings", s.ratings)
	r.GET("/report/trend", s.trend)
	r.GET("/report/words", s.words) // ?top=50

	if s.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})))
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listComments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}

	total, err := s.Comments.Count(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	data, err := s.Comments.Page(c, int64((page-1)*limit), int64(limit))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total": total,
		"page":  page,
		"limit": limit,
		"data":  data,
	})
}

func (s *Server) report(c *gin.Context) {
	comments, ok := s.loadAll(c)
	if !ok {
		return
	}
	report, err := analysis.BuildReport(comments, s.Analysis)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) ratings(c *gin.Context) {
	comments, ok := s.loadAll(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ratings": analysis.RatingDistribution(comments),
		"average": analysis.AverageScore(comments),
	})
}

func (s *Server) trend(c *gin.Context) {
	comments, ok := s.loadAll(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, analysis.MonthlyTrend(comments))
}

func (s *Server) words(c *gin.Context) {
	top := s.Analysis.TopWords
	if v := c.Query("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "top must be a positive integer"})
			return
		}
		top = n
	}

	comments, ok := s.loadAll(c)
	if !ok {
		return
	}
	tok := s.Analysis.Tokenizer
	if tok == nil {
		var err error
		if tok, err = analysis.DefaultTokenizer(); err != nil {
			s.fail(c, err)
			return
		}
	}
	freq := analysis.WordFrequency(comments, tok, top)
	c.JSON(http.StatusOK, gin.H{"words": analysis.WordCloud(freq, top)})
}

func (s *Server) loadAll(c *gin.Context) ([]models.Comment, bool) {
	comments, err := s.Comments.All(c)
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return comments, true
}

func (s *Server) fail(c *gin.Context, err error) {
	s.Log.Error("store query failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
