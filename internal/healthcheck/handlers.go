package healthcheck

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	registry *Registry
}

func NewHandlers(registry *Registry) *Handlers {
	return &Handlers{registry: registry}
}

func (h *Handlers) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("/run", h.Run)
}

type checkInfo struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Group       string  `json:"group"`
	Result      *Result `json:"result,omitempty"`
}

// List returns every registered check with its latest result, if any.
func (h *Handlers) List(c *gin.Context) {
	latest := make(map[string]Result)
	for _, res := range h.registry.Results() {
		latest[res.CheckID] = res
	}

	checks := h.registry.Checks()
	out := make([]checkInfo, 0, len(checks))
	for _, check := range checks {
		info := checkInfo{
			ID:          check.ID(),
			Name:        check.Name(),
			Description: check.Description(),
			Group:       check.Group(),
		}
		if res, ok := latest[check.ID()]; ok {
			info.Result = &res
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, gin.H{"checks": out})
}

func (h *Handlers) Run(c *gin.Context) {
	results := h.registry.RunAll(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"results": results})
}
