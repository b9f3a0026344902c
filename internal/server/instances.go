package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	instancedomain "github.com/smallbiznis/backoffice/internal/instance/domain"
	"github.com/smallbiznis/backoffice/pkg/db/pagination"
)

type createInstanceRequest struct {
	CustomerRef string          `json:"customer_ref"`
	ProductRef  string          `json:"product_ref"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int64           `json:"quantity"`
	DueDate     string          `json:"due_date"`
	Note        string          `json:"note"`
}

type listInstancesQuery struct {
	PageToken     string `form:"page_token"`
	PageSize      int    `form:"page_size"`
	CustomerRef   string `form:"customer_ref"`
	ScheduleID    string `form:"schedule_id"`
	PaymentStatus string `form:"payment_status"`
	ActiveOnly    string `form:"active_only"`
	Unpaid        string `form:"unpaid"`
}

func (s *Server) CreateOneOffInstance(c *gin.Context) {
	var req createInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	dueDate, err := parseDate("due_date", req.DueDate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	inst, err := s.instanceSvc.CreateOneOffInstance(c.Request.Context(), instancedomain.CreateOneOffRequest{
		CustomerRef: req.CustomerRef,
		ProductRef:  req.ProductRef,
		UnitPrice:   req.UnitPrice,
		Quantity:    req.Quantity,
		DueDate:     dueDate,
		Note:        req.Note,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": inst})
}

func (s *Server) GetInstance(c *gin.Context) {
	inst, err := s.instanceSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inst})
}

// ListInstances pages through instances. With unpaid=true and a customer_ref
// it returns that customer's open bills, newest due date first, unpaged.
func (s *Server) ListInstances(c *gin.Context) {
	var query listInstancesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	unpaid, err := parseOptionalBool(query.Unpaid)
	if err != nil {
		AbortWithError(c, newValidationError("unpaid", "invalid_unpaid", "unpaid must be a boolean"))
		return
	}
	activeOnly, err := parseOptionalBool(query.ActiveOnly)
	if err != nil {
		AbortWithError(c, newValidationError("active_only", "invalid_active_only", "active_only must be a boolean"))
		return
	}

	if unpaid {
		items, err := s.instanceSvc.ListUnpaidByCustomer(c.Request.Context(), query.CustomerRef)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": items})
		return
	}

	resp, err := s.instanceSvc.List(c.Request.Context(), instancedomain.ListInstanceRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		CustomerRef:   strings.TrimSpace(query.CustomerRef),
		ScheduleID:    strings.TrimSpace(query.ScheduleID),
		PaymentStatus: instancedomain.PaymentStatus(strings.TrimSpace(query.PaymentStatus)),
		ActiveOnly:    activeOnly,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Instances, "page_info": resp.PageInfo})
}
