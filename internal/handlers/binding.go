package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var errEmptyBody = errors.New("request body is empty")

func init() {
	// バリデーションエラーのフィールド名をJSONのキーに揃える
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonFieldName)
	}
}

func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

// bindStrictJSON はボディをデコードし、未知のキーを拒否してから binding タグで検証します。
func bindStrictJSON(c *gin.Context, obj any) error {
	if c.Request.Body == nil {
		return errEmptyBody
	}
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(obj); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return binding.Validator.ValidateStruct(obj)
}

// bindError はバインドの失敗を 400 で返します。
func bindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			details[fe.Field()] = describeFieldError(fe)
		}
		badRequest(c, details)
		return
	}
	badRequest(c, map[string]string{"body": err.Error()})
}

func badRequest(c *gin.Context, details map[string]string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": details})
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "email":
		return "must be a valid email address"
	}
	return "failed on " + fe.Tag()
}
