package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestGetPaginationParamsClampsAndRestrictsSort(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?page=0&page_size=500&order=sideways&sort=content", nil)

	params := GetPaginationParams(c, "last_message_at", "created_at")
	if params.Page != 1 {
		t.Fatalf("expected page clamped to 1, got %d", params.Page)
	}
	if params.PageSize != MaxPageSize {
		t.Fatalf("expected page size clamped to %d, got %d", MaxPageSize, params.PageSize)
	}
	if params.Order != "desc" {
		t.Fatalf("expected default order desc, got %s", params.Order)
	}
	if params.Sort != "last_message_at" {
		t.Fatalf("expected disallowed sort to fall back to default, got %s", params.Sort)
	}

	// gin caches parsed query values per context.
	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?page=3&page_size=10&order=asc&sort=created_at", nil)
	params = GetPaginationParams(c, "last_message_at", "created_at")
	if params.Page != 3 || params.PageSize != 10 || params.Order != "asc" || params.Sort != "created_at" {
		t.Fatalf("unexpected params %+v", params)
	}
	if params.GetSkip() != 20 {
		t.Fatalf("expected skip 20, got %d", params.GetSkip())
	}
}

func TestCreatePaginationMeta(t *testing.T) {
	meta := CreatePaginationMeta(&PaginationParams{Page: 2, PageSize: 10}, 25)
	if meta.TotalPages != 3 || !meta.HasNext || !meta.HasPrevious {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if *meta.NextPage != 3 || *meta.PreviousPage != 1 {
		t.Fatalf("unexpected neighbours %+v", meta)
	}
}
