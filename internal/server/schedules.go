package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	scheduledomain "github.com/smallbiznis/backoffice/internal/schedule/domain"
	"github.com/smallbiznis/backoffice/pkg/db/pagination"
)

type scheduleRequest struct {
	CustomerRef  string          `json:"customer_ref"`
	ProductRef   string          `json:"product_ref"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int64           `json:"quantity"`
	Cadence      string          `json:"cadence"`
	AnchorDate   string          `json:"anchor_date"`
	Category     string          `json:"category"`
	AccountOwner string          `json:"account_owner"`
	BankAccount  string          `json:"bank_account"`
}

func (r scheduleRequest) toDomain() (scheduledomain.CreateScheduleRequest, error) {
	anchor, err := parseDate("anchor_date", r.AnchorDate)
	if err != nil {
		return scheduledomain.CreateScheduleRequest{}, err
	}
	return scheduledomain.CreateScheduleRequest{
		CustomerRef:  r.CustomerRef,
		ProductRef:   r.ProductRef,
		UnitPrice:    r.UnitPrice,
		Quantity:     r.Quantity,
		Cadence:      r.Cadence,
		AnchorDate:   anchor,
		Category:     r.Category,
		AccountOwner: r.AccountOwner,
		BankAccount:  r.BankAccount,
	}, nil
}

type catchUpRequest struct {
	AsOf string `json:"as_of"`
}

type listSchedulesQuery struct {
	PageToken   string `form:"page_token"`
	PageSize    int    `form:"page_size"`
	CustomerRef string `form:"customer_ref"`
	Status      string `form:"status"`
}

func (s *Server) bindSchedule(c *gin.Context) (scheduledomain.CreateScheduleRequest, bool) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return scheduledomain.CreateScheduleRequest{}, false
	}
	out, err := req.toDomain()
	if err != nil {
		AbortWithError(c, err)
		return scheduledomain.CreateScheduleRequest{}, false
	}
	return out, true
}

func (s *Server) CreateSchedule(c *gin.Context) {
	req, ok := s.bindSchedule(c)
	if !ok {
		return
	}
	res, err := s.scheduleSvc.CreateSchedule(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": res})
}

func (s *Server) SupersedeSchedule(c *gin.Context) {
	req, ok := s.bindSchedule(c)
	if !ok {
		return
	}
	res, err := s.scheduleSvc.SupersedeSchedule(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": res})
}

func (s *Server) GetSchedule(c *gin.Context) {
	item, err := s.scheduleSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ListSchedules(c *gin.Context) {
	var query listSchedulesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.scheduleSvc.List(c.Request.Context(), scheduledomain.ListScheduleRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		CustomerRef: strings.TrimSpace(query.CustomerRef),
		Status:      scheduledomain.Status(strings.TrimSpace(query.Status)),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.Schedules, "page_info": resp.PageInfo})
}

// RunCatchUp accepts an empty body, in which case the engine's today is used.
func (s *Server) RunCatchUp(c *gin.Context) {
	var req catchUpRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	asOf, err := parseDate("as_of", req.AsOf)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	res, err := s.catchUp.RunCatchUp(c.Request.Context(), c.Param("id"), asOf)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

// RunSweep triggers a sweep on demand. Without an as_of it goes through the
// scheduler lease when one is wired so it never overlaps the periodic run.
func (s *Server) RunSweep(c *gin.Context) {
	var req catchUpRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	asOf, err := parseDate("as_of", req.AsOf)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.scheduler != nil && asOf.IsZero() {
		res, err := s.scheduler.RunOnce(c.Request.Context())
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": res})
		return
	}

	res, err := s.catchUp.Sweep(c.Request.Context(), asOf)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}
