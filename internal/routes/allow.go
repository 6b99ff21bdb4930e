package routes

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var methodOrder = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodOptions,
}

// methodNotAllowed は405を返します。Allow にはそのパスに登録されたメソッドだけを並べます。
func methodNotAllowed(r *gin.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if allow := allowedMethods(r.Routes(), c.Request.URL.Path); allow != "" {
			c.Header("Allow", allow)
		}
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	}
}

func allowedMethods(routes gin.RoutesInfo, path string) string {
	found := map[string]bool{}
	for _, rt := range routes {
		if matchPath(rt.Path, path) {
			found[rt.Method] = true
		}
	}
	var out []string
	for _, m := range methodOrder {
		if found[m] {
			out = append(out, m)
		}
	}
	return strings.Join(out, ", ")
}

// matchPath は ":param" を1セグメントとして扱います。
func matchPath(pattern, path string) bool {
	ps := strings.Split(strings.Trim(pattern, "/"), "/")
	qs := strings.Split(strings.Trim(path, "/"), "/")
	if len(ps) != len(qs) {
		return false
	}
	for i, p := range ps {
		if strings.HasPrefix(p, ":") {
			if qs[i] == "" {
				return false
			}
			continue
		}
		if p != qs[i] {
			return false
		}
	}
	return true
}
