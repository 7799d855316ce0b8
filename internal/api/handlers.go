package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/signalsfoundry/meteor-showers/activity"
	"github.com/signalsfoundry/meteor-showers/core"
	"github.com/signalsfoundry/meteor-showers/model"
	"github.com/signalsfoundry/meteor-showers/search"
)

type periodView struct {
	Year     string `json:"year"`
	Start    string `json:"start"`
	Finish   string `json:"finish"`
	Peak     string `json:"peak"`
	ZHR      int    `json:"zhr"`
	Variable string `json:"variable"`
}

type showerView struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	RA       float64      `json:"ra"`
	Dec      float64      `json:"dec"`
	Speed    int          `json:"speed"`
	Activity []periodView `json:"activity"`
}

type horizontalView struct {
	Altitude float64 `json:"altitude"`
	Azimuth  float64 `json:"azimuth"`
}

type activeView struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Year     string    `json:"year"`
	Start    time.Time `json:"start"`
	Peak     time.Time `json:"peak"`
	Finish   time.Time `json:"finish"`
	PeakZHR  int       `json:"peak_zhr"`
	ZHR      float64   `json:"zhr"`
	Variable string    `json:"variable"`
	Speed    int       `json:"speed"`
}

type particleView struct {
	Shower    string     `json:"shower"`
	Position  [3]float64 `json:"position"`
	Age       float64    `json:"age_seconds"`
	Progress  float64    `json:"progress"`
	Magnitude float64    `json:"magnitude"`
	Speed     int        `json:"speed"`
}

func toShowerView(s *model.Shower) showerView {
	v := showerView{
		ID:       s.ID,
		Name:     s.DisplayName(),
		RA:       s.Radiant.RA,
		Dec:      s.Radiant.Dec,
		Speed:    s.Speed,
		Activity: make([]periodView, 0, len(s.Periods)),
	}
	for _, p := range s.Periods {
		v.Activity = append(v.Activity, periodView{
			Year:     p.Year,
			Start:    p.Start.String(),
			Finish:   p.Finish.String(),
			Peak:     p.Peak.String(),
			ZHR:      p.ZHR,
			Variable: p.Variable.String(),
		})
	}
	return v
}

func toActiveView(a activity.ActiveShower) activeView {
	return activeView{
		ID:       a.ShowerID,
		Name:     a.Name,
		Year:     a.Year,
		Start:    a.Start,
		Peak:     a.Peak,
		Finish:   a.Finish,
		PeakZHR:  a.PeakZHR,
		ZHR:      a.ZHR,
		Variable: a.Variable.String(),
		Speed:    a.Speed,
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	store := s.engine.Store()
	if store.Generation() == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "no catalog"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"catalog_version": store.Version(),
		"showers":         len(store.Showers()),
	})
}

func (s *Server) handleListShowers(c *gin.Context) {
	showers := s.engine.Store().Showers()
	out := make([]showerView, 0, len(showers))
	for _, sh := range showers {
		out = append(out, toShowerView(sh))
	}
	c.JSON(http.StatusOK, gin.H{
		"data": out,
		"meta": gin.H{
			"count":   len(out),
			"version": s.engine.Store().Version(),
		},
	})
}

func (s *Server) handleGetShower(c *gin.Context) {
	sh := s.engine.Store().Get(c.Param("id"))
	if sh == nil {
		errorJSON(c, http.StatusNotFound, "shower not found")
		return
	}
	now := s.engine.Clock().Now()
	resp := gin.H{
		"data": toShowerView(sh),
		"info": search.NewShowerObject(sh).Info(now),
	}
	if s.observer != nil {
		alt, az := s.observer.Horizontal(sh.Radiant.RA, sh.Radiant.Dec, now)
		resp["radiant_horizontal"] = horizontalView{Altitude: alt, Azimuth: az}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleShowerActivity(c *gin.Context) {
	sh := s.engine.Store().Get(c.Param("id"))
	if sh == nil {
		errorJSON(c, http.StatusNotFound, "shower not found")
		return
	}
	at, ok := s.queryTime(c, "at")
	if !ok {
		return
	}
	resp := gin.H{
		"id":     sh.ID,
		"at":     at,
		"active": false,
		"zhr":    0.0,
	}
	if m, found := activity.ActivePeriod(sh, at); found {
		resp["active"] = true
		resp["zhr"] = m.ZHR
		resp["period"] = gin.H{
			"year":     m.Period.Year,
			"start":    m.Window.Start,
			"peak":     m.Window.Peak,
			"finish":   m.Window.Finish,
			"peak_zhr": m.Period.ZHR,
			"variable": m.Period.Variable.String(),
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleActive(c *gin.Context) {
	var active []activity.ActiveShower
	if raw := c.Query("at"); raw != "" {
		at, ok := s.queryTime(c, "at")
		if !ok {
			return
		}
		active = activity.ActiveInfo(s.engine.Store().Showers(), at)
	} else {
		active = s.engine.ActiveInfo()
	}
	out := make([]activeView, 0, len(active))
	for _, a := range active {
		out = append(out, toActiveView(a))
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "meta": gin.H{"count": len(out)}})
}

func (s *Server) handleSearchAround(c *gin.Context) {
	ra, errRA := strconv.ParseFloat(c.Query("ra"), 64)
	dec, errDec := strconv.ParseFloat(c.Query("dec"), 64)
	if errRA != nil || errDec != nil || dec < -90 || dec > 90 {
		errorJSON(c, http.StatusBadRequest, "ra and dec are required degrees")
		return
	}
	radius := 10.0
	if raw := c.Query("radius"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil || r <= 0 || r > 180 {
			errorJSON(c, http.StatusBadRequest, "invalid radius")
			return
		}
		radius = r
	}

	now := s.engine.Clock().Now()
	objs := s.engine.Search().SearchAround(core.FromEquatorial(ra, dec), radius)
	out := make([]search.Info, 0, len(objs))
	for _, o := range objs {
		out = append(out, o.Info(now))
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "meta": gin.H{"count": len(out)}})
}

func (s *Server) handleComplete(c *gin.Context) {
	limit := 0
	if raw := c.Query("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			errorJSON(c, http.StatusBadRequest, "invalid max")
			return
		}
		limit = n
	}
	words := false
	if raw := c.Query("words"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			errorJSON(c, http.StatusBadRequest, "invalid words")
			return
		}
		words = b
	}
	names := s.engine.Search().ListMatching(c.Query("prefix"), limit, words)
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"data": names})
}

func (s *Server) handleStreams(c *gin.Context) {
	particles := s.engine.Streams().Snapshot()
	out := make([]particleView, 0, len(particles))
	for _, p := range particles {
		out = append(out, particleView{
			Shower:    p.ShowerID,
			Position:  [3]float64{p.Position.X, p.Position.Y, p.Position.Z},
			Age:       p.Age.Seconds(),
			Progress:  p.Progress,
			Magnitude: p.Magnitude,
			Speed:     p.Speed,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"data": out,
		"meta": gin.H{
			"count":   len(out),
			"visible": s.engine.ShowMeteors(),
			"time":    s.engine.Streams().Now(),
		},
	})
}

func (s *Server) handleSetVisible(c *gin.Context) {
	var body struct {
		Visible *bool `json:"visible"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Visible == nil {
		errorJSON(c, http.StatusBadRequest, "body must be {\"visible\": bool}")
		return
	}
	if err := s.engine.SetShowMeteors(*body.Visible); err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"visible": s.engine.ShowMeteors()})
}

func (s *Server) handleUpdateStatus(c *gin.Context) {
	u := s.engine.Updater()
	st := u.Status()
	c.JSON(http.StatusOK, gin.H{
		"state":             st.State.String(),
		"last_result":       st.LastResult.String(),
		"last_attempt_id":   st.LastAttemptID,
		"last_update":       st.LastUpdate,
		"catalog_version":   st.CatalogVersion,
		"enabled":           st.Enabled,
		"frequency_hours":   int(st.Frequency / time.Hour),
		"seconds_to_update": u.SecondsToUpdate(time.Now()),
	})
}

func (s *Server) handleRequestUpdate(c *gin.Context) {
	if !s.engine.Updater().RequestUpdate() {
		errorJSON(c, http.StatusConflict, "update already in progress")
		return
	}
	st := s.engine.Updater().Status()
	c.JSON(http.StatusAccepted, gin.H{
		"state":      st.State.String(),
		"attempt_id": st.LastAttemptID,
	})
}

func (s *Server) handleMessages(c *gin.Context) {
	msgs := s.engine.Messages().Active()
	c.JSON(http.StatusOK, gin.H{"data": msgs, "meta": gin.H{"count": len(msgs)}})
}

// queryTime parses an RFC 3339 query parameter, defaulting to the simulation
// clock. It writes a 400 and returns false on a malformed value.
func (s *Server) queryTime(c *gin.Context, key string) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return s.engine.Clock().Now(), true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid "+key+" timestamp")
		return time.Time{}, false
	}
	return t.UTC(), true
}
