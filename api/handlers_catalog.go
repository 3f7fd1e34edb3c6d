package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"zinga/db"
	"zinga/utils"
)

// CatalogResponse is one page of catalog records.
type CatalogResponse struct {
	Data   []json.RawMessage `json:"data"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// CatalogHandler searches one collection of the document.
// @Summary      Search a Collection
// @Description  Filters, sorts and pages the records of `modules`, `packages`, `purchases` or `users`. User records never include passwords.
// @Description
// @Description  Each `q` parameter is one condition `path operator value`:
// @Description  *   `path` is a gjson path into the record, e.g. `price`, `tags.0`, `title`.
// @Description  *   `operator` is one of `equals`, `notequals`, `contains`, `startswith`, `endswith`, `greaterthan`, `lessthan`, `exists`. The string operators take an `-insensitive` suffix.
// @Description  *   `value` is JSON: strings in double quotes, numbers, `true`/`false`, `null`.
// @Description
// @Description  Conditions are ANDed. Put `q=OR` between two conditions to OR them.
// @Description
// @Description  Example: `/api/catalog/modules?q=category equals "letters"&q=price lessthan 10&sort_by=price&order=desc`
// @Tags         Catalog
// @Produce      json
// @Param        collection path   string   true  "Collection to search." Enums(modules, packages, purchases, users)
// @Param        q          query  []string false "Condition, repeatable." collectionFormat(multi)
// @Param        sort_by    query  string   false "gjson path to sort by."
// @Param        order      query  string   false "Sort direction." Enums(asc, desc) default(asc)
// @Param        limit      query  int      false "Page size." minimum(1) maximum(100) default(20)
// @Param        offset     query  int      false "Records to skip." minimum(0) default(0)
// @Success      200  {object}  CatalogResponse
// @Failure      400  {object}  utils.APIError "Bad Request: invalid query syntax or paging parameters."
// @Failure      404  {object}  utils.APIError "Not Found: unknown collection."
// @Failure      500  {object}  utils.APIError "Internal Server Error: the document could not be read."
// @Router       /api/catalog/{collection} [get]
func CatalogHandler(c *gin.Context, store *db.Store) {
	limit, errLimit := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, errOffset := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if errLimit != nil || errOffset != nil || limit < 1 || offset < 0 {
		utils.GinBadRequest(c, "Invalid 'limit' or 'offset' query parameter. Must be non-negative integers, limit at least 1.")
		return
	}

	params := db.QueryParams{
		Collection: c.Param("collection"),
		Query:      c.QueryArray("q"),
		SortBy:     c.Query("sort_by"),
		Order:      c.DefaultQuery("order", "asc"),
		Limit:      limit,
		Offset:     offset,
	}
	records, total, err := store.QueryCatalog(c.Request.Context(), params)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, CatalogResponse{
		Data:   records,
		Total:  total,
		Limit:  min(limit, db.MaxCatalogLimit),
		Offset: offset,
	})
}
