package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"quote-screener/internal/domain"
	"quote-screener/internal/screening"
)

func (s *Server) listPresets(c *gin.Context) {
	presets := s.presets.List()
	out := make([]presetJSON, len(presets))
	for i, p := range presets {
		out[i] = toPresetJSON(p)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) searchInstruments(c *gin.Context) {
	if s.index == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": "search index disabled"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		s.fail(c, badRequest("limit must be a positive integer"))
		return
	}

	found, err := s.index.Search(c.Query("q"), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]instrumentJSON, len(found))
	for i, inst := range found {
		out[i] = toInstrumentJSON(inst)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getQuote(c *gin.Context) {
	symbol := c.Param("symbol")
	inst, ok := s.catalog.Resolve(symbol)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown instrument " + symbol})
		return
	}
	q, err := s.quotes.Get(inst.Symbol)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"instrument": toInstrumentJSON(inst),
		"quote":      toQuoteJSON(q, s.quotes.IsStale(inst.Symbol)),
	})
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("%v", err))
		return
	}

	set := domain.MustCriteriaSet()
	sortKey := domain.DefaultSortKey
	if req.Preset != "" {
		p, err := s.presets.Get(req.Preset)
		if err != nil {
			s.fail(c, err)
			return
		}
		set, sortKey = p.Apply()
	}
	if req.Criteria != nil {
		var err error
		if set, err = criteriaSetFrom(req.Criteria); err != nil {
			s.fail(c, err)
			return
		}
	}
	if req.Sort != nil {
		var err error
		if sortKey, err = req.Sort.toSortKey(); err != nil {
			s.fail(c, err)
			return
		}
	}

	sess, err := s.manager.Create(c.Request.Context(), set, sortKey)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respondSession(c, http.StatusCreated, sess)
}

func (s *Server) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.manager.IDs()})
}

func (s *Server) closeSession(c *gin.Context) {
	if err := s.manager.Close(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) page(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	offset, err1 := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, err2 := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err1 != nil || err2 != nil {
		s.fail(c, badRequest("offset and limit must be integers"))
		return
	}

	page, err := s.projector.Page(sess, offset, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pageJSON{
		Version: page.Version,
		Epoch:   page.Epoch,
		Total:   page.Total,
		Offset:  page.Offset,
		Sort:    sortKeyJSON(page.Sort),
		Items:   toItemsJSON(page.Items),
	})
}

func (s *Server) diff(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	since, err := strconv.ParseUint(c.Query("since"), 10, 64)
	if err != nil {
		s.fail(c, badRequest("since must be a version number"))
		return
	}

	d, err := s.projector.DiffSince(sess, since)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toDiffJSON(d))
}

func (s *Server) explain(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	snap, err := sess.Snapshot()
	if err != nil {
		s.fail(c, err)
		return
	}
	inst, ok := s.catalog.Resolve(c.Param("symbol"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown instrument " + c.Param("symbol")})
		return
	}
	q, err := s.quotes.Get(inst.Symbol)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":   inst.Symbol,
		"matches":  s.engine.Matches(q, snap.Criteria),
		"criteria": toExplainJSON(s.engine.Explain(q, snap.Criteria)),
	})
}

func (s *Server) replaceCriteria(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req replaceCriteriaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("%v", err))
		return
	}
	set, err := criteriaSetFrom(req.Criteria)
	if err != nil {
		s.fail(c, err)
		return
	}
	var sortKey *domain.SortKey
	if req.Sort != nil {
		k, err := req.Sort.toSortKey()
		if err != nil {
			s.fail(c, err)
			return
		}
		sortKey = &k
	}

	if err := sess.ReplaceCriteria(c.Request.Context(), set, sortKey); err != nil {
		s.fail(c, err)
		return
	}
	s.respondSession(c, http.StatusOK, sess)
}

func (s *Server) setCriterion(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req setCriterionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("%v", err))
		return
	}
	crit, err := criterionJSON{Field: c.Param("field"), Min: req.Min, Max: req.Max, Enabled: req.Enabled}.toCriterion()
	if err != nil {
		s.fail(c, err)
		return
	}

	if err := sess.SetCriterion(c.Request.Context(), crit); err != nil {
		s.fail(c, err)
		return
	}
	s.respondSession(c, http.StatusOK, sess)
}

func (s *Server) removeCriterion(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	field, err := domain.ParseField(c.Param("field"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := sess.RemoveCriterion(c.Request.Context(), field); err != nil {
		s.fail(c, err)
		return
	}
	s.respondSession(c, http.StatusOK, sess)
}

func (s *Server) setSort(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req sortJSON
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("%v", err))
		return
	}
	key, err := req.toSortKey()
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := sess.SetSort(key); err != nil {
		s.fail(c, err)
		return
	}
	s.respondSession(c, http.StatusOK, sess)
}

func (s *Server) session(c *gin.Context) (*screening.Session, bool) {
	sess, err := s.manager.Get(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) respondSession(c *gin.Context, status int, sess *screening.Session) {
	snap, err := sess.Snapshot()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(status, toSessionJSON(sess, snap))
}
