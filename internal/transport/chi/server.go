// Package chi exposes the governor's read model over HTTP: per-service
// status, raw usage, priced costs, forecasts and recommendations. Metering
// itself stays in-process; the API is for dashboards and operators.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	gochi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	domusage "github.com/kailas-cloud/usagegov/internal/domain/usage"
	governoruc "github.com/kailas-cloud/usagegov/internal/usecase/governor"
	healthuc "github.com/kailas-cloud/usagegov/internal/usecase/health"
	predictuc "github.com/kailas-cloud/usagegov/internal/usecase/predict"
	pricinguc "github.com/kailas-cloud/usagegov/internal/usecase/pricing"
)

// Error codes returned in the JSON error envelope.
const (
	codeBadRequest    = "bad_request"
	codeNotFound      = "not_found"
	codeInternalError = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type serviceStatusResponse struct {
	Service       string  `json:"service"`
	State         string  `json:"state"`
	RequestsToday int64   `json:"requests_today"`
	Limit         int64   `json:"limit,omitempty"`
	PercentUsed   float64 `json:"percent_used"`
	MonthUSD      float64 `json:"month_usd"`
	BudgetUSD     float64 `json:"budget_usd,omitempty"`
	WithinBudget  bool    `json:"within_budget"`
}

type dailyUsageResponse struct {
	Service       string  `json:"service"`
	Endpoint      string  `json:"endpoint"`
	Date          string  `json:"date"`
	Requests      int64   `json:"requests"`
	CostUSD       float64 `json:"cost_usd"`
	Tokens        int64   `json:"tokens,omitempty"`
	AvgDurationMs float64 `json:"avg_duration_ms,omitempty"`
}

type monthlyUsageResponse struct {
	Service       string  `json:"service"`
	Month         string  `json:"month"`
	Requests      int64   `json:"requests"`
	CostUSD       float64 `json:"cost_usd"`
	Tokens        int64   `json:"tokens,omitempty"`
	AvgDurationMs float64 `json:"avg_duration_ms,omitempty"`
	ActiveDays    int64   `json:"active_days"`
}

type usageResponse struct {
	Daily   *dailyUsageResponse   `json:"daily"`
	Monthly *monthlyUsageResponse `json:"monthly"`
}

type serviceCostResponse struct {
	Service      string  `json:"service"`
	Tier         string  `json:"tier"`
	CostUSD      float64 `json:"cost_usd"`
	Detail       string  `json:"detail,omitempty"`
	Unbilled     bool    `json:"unbilled,omitempty"`
	BudgetUSD    float64 `json:"budget_usd,omitempty"`
	WithinBudget bool    `json:"within_budget"`
}

type monthlyCostResponse struct {
	Month          string                `json:"month"`
	Services       []serviceCostResponse `json:"services"`
	TotalUSD       float64               `json:"total_usd"`
	TotalBudgetUSD float64               `json:"total_budget_usd,omitempty"`
	PercentUsed    float64               `json:"percent_used"`
	ProjectedUSD   float64               `json:"projected_usd"`
}

type predictionResponse struct {
	Service           string  `json:"service"`
	Endpoint          string  `json:"endpoint"`
	DaysUntilLimit    *int    `json:"days_until_limit"`
	EstimatedDate     *string `json:"estimated_date"`
	CurrentUsage      int64   `json:"current_usage"`
	Limit             int64   `json:"limit"`
	AverageDailyUsage float64 `json:"average_daily_usage"`
	Confidence        string  `json:"confidence"`
}

type recommendationsResponse struct {
	Recommendations []string `json:"recommendations"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Server serves the dashboard API.
type Server struct {
	governor *governoruc.Service
	health   *healthuc.Service
	logger   *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(governor *governoruc.Service, health *healthuc.Service, logger *zap.Logger) *Server {
	return &Server{governor: governor, health: health, logger: logger}
}

// Register mounts all routes on the router.
func (s *Server) Register(r gochi.Router) {
	r.Get("/healthz", s.healthCheck)
	r.Get("/metrics", s.metricsHandler)

	r.Route("/v1", func(r gochi.Router) {
		r.Get("/services", s.listServices)
		r.Get("/usage/{service}", s.getUsage)
		r.Get("/usage/{service}/history", s.getHistory)
		r.Delete("/usage", s.clearUsage)
		r.Get("/costs", s.getCosts)
		r.Get("/predictions/{service}", s.getPrediction)
		r.Get("/recommendations", s.getRecommendations)
	})
}

// listServices handles GET /v1/services.
func (s *Server) listServices(w http.ResponseWriter, r *http.Request) {
	rows, err := s.governor.Overview(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}

	items := make([]serviceStatusResponse, len(rows))
	for i, row := range rows {
		items[i] = serviceStatusResponse{
			Service:       row.Service,
			State:         string(row.State),
			RequestsToday: row.RequestsToday,
			Limit:         row.Limit,
			PercentUsed:   row.PercentUsed,
			MonthUSD:      row.MonthUSD,
			BudgetUSD:     row.BudgetUSD,
			WithinBudget:  row.WithinBudget,
		}
	}
	writeJSON(w, http.StatusOK, items)
}

// getUsage handles GET /v1/usage/{service}. Optional query params: endpoint,
// date (YYYY-MM-DD) and month (YYYY-MM).
func (s *Server) getUsage(w http.ResponseWriter, r *http.Request) {
	service := gochi.URLParam(r, "service")
	if !s.knownService(service) {
		writeError(w, http.StatusNotFound, codeNotFound, "unknown service: "+service)
		return
	}
	endpoint := r.URL.Query().Get("endpoint")

	var day time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		var err error
		if day, err = time.Parse("2006-01-02", raw); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}
	var month time.Time
	if raw := r.URL.Query().Get("month"); raw != "" {
		var err error
		if month, err = time.Parse("2006-01", raw); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "month must be YYYY-MM")
			return
		}
	}

	daily, err := s.governor.DailyUsage(r.Context(), service, endpoint, day)
	if err != nil {
		s.internalError(w, err)
		return
	}
	monthly, err := s.governor.MonthlyUsage(r.Context(), service, month)
	if err != nil {
		s.internalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, usageResponse{
		Daily:   dailyToResponse(daily),
		Monthly: monthlyToResponse(monthly),
	})
}

// getHistory handles GET /v1/usage/{service}/history. Optional query params:
// endpoint, days (default 7).
func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	service := gochi.URLParam(r, "service")
	if !s.knownService(service) {
		writeError(w, http.StatusNotFound, codeNotFound, "unknown service: "+service)
		return
	}
	endpoint := r.URL.Query().Get("endpoint")

	days := predictuc.DefaultDaysToAnalyze
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 365 {
			writeError(w, http.StatusBadRequest, codeBadRequest, "days must be between 1 and 365")
			return
		}
		days = parsed
	}

	recs, err := s.governor.HistoricalUsage(r.Context(), service, endpoint, days)
	if err != nil {
		s.internalError(w, err)
		return
	}

	items := make([]dailyUsageResponse, len(recs))
	for i := range recs {
		items[i] = *dailyToResponse(&recs[i])
	}
	writeJSON(w, http.StatusOK, items)
}

// clearUsage handles DELETE /v1/usage. Wipes every usage record.
func (s *Server) clearUsage(w http.ResponseWriter, r *http.Request) {
	if err := s.governor.ClearAllUsageData(r.Context()); err != nil {
		s.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getCosts handles GET /v1/costs. Optional query param: month (YYYY-MM).
func (s *Server) getCosts(w http.ResponseWriter, r *http.Request) {
	var month time.Time
	if raw := r.URL.Query().Get("month"); raw != "" {
		var err error
		if month, err = time.Parse("2006-01", raw); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "month must be YYYY-MM")
			return
		}
	}

	rep, err := s.governor.MonthlyCost(r.Context(), month)
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reportToResponse(rep))
}

// getPrediction handles GET /v1/predictions/{service}. Optional query
// params: endpoint, days (analysis window, default 7).
func (s *Server) getPrediction(w http.ResponseWriter, r *http.Request) {
	service := gochi.URLParam(r, "service")
	if !s.knownService(service) {
		writeError(w, http.StatusNotFound, codeNotFound, "unknown service: "+service)
		return
	}
	endpoint := r.URL.Query().Get("endpoint")
	if endpoint == "" {
		endpoint = domusage.DefaultEndpoint
	}

	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 365 {
			writeError(w, http.StatusBadRequest, codeBadRequest, "days must be between 1 and 365")
			return
		}
		days = parsed
	}

	p, err := s.governor.PredictLimitDate(r.Context(), service, endpoint, days)
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, predictionToResponse(p))
}

// getRecommendations handles GET /v1/recommendations. Optional query
// param: month (YYYY-MM).
func (s *Server) getRecommendations(w http.ResponseWriter, r *http.Request) {
	var month time.Time
	if raw := r.URL.Query().Get("month"); raw != "" {
		var err error
		if month, err = time.Parse("2006-01", raw); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "month must be YYYY-MM")
			return
		}
	}

	recs, err := s.governor.Recommendations(r.Context(), month)
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recommendationsResponse{Recommendations: recs})
}

// healthCheck handles GET /healthz.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// metricsHandler handles GET /metrics.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) knownService(name string) bool {
	for _, svc := range s.governor.Services() {
		if svc == name {
			return true
		}
	}
	return false
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Warn("request failed", zap.Error(err))
	if errors.Is(err, pricinguc.ErrUnknownService) {
		writeError(w, http.StatusNotFound, codeNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

func dailyToResponse(rec *domusage.DailyRecord) *dailyUsageResponse {
	if rec == nil {
		return nil
	}
	return &dailyUsageResponse{
		Service:       rec.Service,
		Endpoint:      rec.Endpoint,
		Date:          rec.Date,
		Requests:      rec.Requests,
		CostUSD:       rec.CostUSD(),
		Tokens:        rec.Tokens,
		AvgDurationMs: rec.AvgDurationMs(),
	}
}

func monthlyToResponse(rec *domusage.MonthlyRecord) *monthlyUsageResponse {
	if rec == nil {
		return nil
	}
	return &monthlyUsageResponse{
		Service:       rec.Service,
		Month:         rec.Month,
		Requests:      rec.Requests,
		CostUSD:       rec.CostUSD(),
		Tokens:        rec.Tokens,
		AvgDurationMs: rec.AvgDurationMs(),
		ActiveDays:    rec.ActiveDays,
	}
}

func reportToResponse(rep pricinguc.MonthlyReport) monthlyCostResponse {
	services := make([]serviceCostResponse, len(rep.Services))
	for i, sc := range rep.Services {
		services[i] = serviceCostResponse{
			Service:      sc.Service,
			Tier:         sc.Breakdown.Tier,
			CostUSD:      sc.Breakdown.USD,
			Detail:       sc.Breakdown.Detail,
			Unbilled:     sc.Breakdown.Unbilled,
			BudgetUSD:    sc.BudgetUSD,
			WithinBudget: sc.WithinBudget,
		}
	}
	return monthlyCostResponse{
		Month:          rep.Month,
		Services:       services,
		TotalUSD:       rep.TotalUSD,
		TotalBudgetUSD: rep.TotalBudgetUSD,
		PercentUsed:    rep.PercentUsed,
		ProjectedUSD:   rep.ProjectedUSD,
	}
}

func predictionToResponse(p predictuc.Prediction) predictionResponse {
	resp := predictionResponse{
		Service:           p.Service,
		Endpoint:          p.Endpoint,
		DaysUntilLimit:    p.DaysUntilLimit,
		CurrentUsage:      p.CurrentUsage,
		Limit:             p.Limit,
		AverageDailyUsage: p.AverageDailyUsage,
		Confidence:        string(p.Confidence),
	}
	if p.EstimatedDate != nil {
		d := p.EstimatedDate.UTC().Format("2006-01-02")
		resp.EstimatedDate = &d
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
