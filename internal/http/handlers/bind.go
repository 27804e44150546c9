package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

// BindJSON decodes and validates the body into out. On failure the error response
// is already written and false is returned.
func BindJSON(ctx *gin.Context, out any) bool {
	return bindResult(ctx, out, ctx.ShouldBindJSON(out), "json")
}

// BindQuery is BindJSON for query strings; field names come from the form tag.
func BindQuery(ctx *gin.Context, out any) bool {
	return bindResult(ctx, out, ctx.ShouldBindQuery(out), "form")
}

func bindResult(ctx *gin.Context, out any, err error, tag string) bool {
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		RespondError(ctx, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large", gin.H{"limit": tooLarge.Limit})
		return false
	}

	RespondBadRequest(ctx, "Invalid request", parseBindError(err, out, tag))

	return false
}

func parseBindError(err error, out any, tag string) any {
	var validationErrors validator.ValidationErrors

	if errors.As(err, &validationErrors) {
		root := structType(out)
		fields := make([]FieldError, 0, len(validationErrors))

		for _, fe := range validationErrors {
			fields = append(fields, FieldError{
				Field:   fieldName(root, fe.StructField(), tag),
				Rule:    fe.Tag(),
				Param:   fe.Param(),
				Message: validationMessage(fe.Tag(), fe.Param()),
			})
		}

		return gin.H{"fields": fields}
	}

	if errors.Is(err, io.EOF) {
		return gin.H{"json": "empty_body"}
	}

	var syntaxError *json.SyntaxError
	if errors.As(err, &syntaxError) {
		return gin.H{"json": "invalid_json_syntax"}
	}

	var typeError *json.UnmarshalTypeError
	if errors.As(err, &typeError) {
		field := strings.TrimSpace(typeError.Field)

		return gin.H{
			"json":  "invalid_json_type",
			"field": field,
			"fields": []FieldError{{
				Field:   field,
				Rule:    "type",
				Message: fmt.Sprintf("must be of type %s", typeError.Type.String()),
			}},
		}
	}

	return gin.H{"reason": err.Error()}
}

func structType(v any) reflect.Type {
	t := reflect.TypeOf(v)

	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}

	return t
}

// fieldName maps a Go field to the name the client sent. Request types are flat.
func fieldName(root reflect.Type, goName, tag string) string {
	if root == nil {
		return goName
	}

	sf, ok := root.FieldByName(goName)
	if !ok {
		return goName
	}

	name, _, _ := strings.Cut(sf.Tag.Get(tag), ",")
	if name == "" || name == "-" {
		return goName
	}

	return name
}

func validationMessage(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	default:
		if param != "" {
			return fmt.Sprintf("failed %s validation (%s)", rule, param)
		}
		return "failed " + rule + " validation"
	}
}
