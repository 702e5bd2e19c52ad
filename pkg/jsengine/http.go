package jsengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// httpModule returns the http object with get, post, put, delete methods
func (e *Engine) httpModule() *goja.Object {
	obj := e.runtime.NewObject()

	for _, method := range []string{"GET", "POST", "PUT", "DELETE"} {
		method := method
		name := strings.ToLower(method)
		if err := obj.Set(name, func(call goja.FunctionCall) goja.Value {
			return e.doHTTPRequest(method, call)
		}); err != nil {
			panic(e.runtime.NewTypeError(fmt.Sprintf("failed to set http.%s: %v", name, err)))
		}
	}

	// http.request(method, url, [options])
	if err := obj.Set("request", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			panic(e.runtime.NewTypeError("http.request requires method and url"))
		}
		return e.doHTTPRequest(call.Arguments[0].String(), goja.FunctionCall{
			This:      call.This,
			Arguments: call.Arguments[1:],
		})
	}); err != nil {
		panic(e.runtime.NewTypeError(fmt.Sprintf("failed to set http.request: %v", err)))
	}

	return obj
}

// HTTPResponse represents the response from an HTTP request
type HTTPResponse struct {
	Status  int                    `json:"status"`
	Body    string                 `json:"body"`
	Headers map[string]string      `json:"headers"`
	Ok      bool                   `json:"ok"`
	JSON    map[string]interface{} `json:"json,omitempty"`
}

type requestOptions struct {
	body    io.Reader
	headers map[string]string
	timeout time.Duration
}

func parseRequestOptions(v goja.Value) requestOptions {
	opts := requestOptions{headers: make(map[string]string)}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return opts
	}
	m, ok := v.Export().(map[string]interface{})
	if !ok {
		return opts
	}

	if h, ok := m["headers"].(map[string]interface{}); ok {
		for k, hv := range h {
			opts.headers[k] = fmt.Sprintf("%v", hv)
		}
	}

	switch b := m["body"].(type) {
	case string:
		opts.body = bytes.NewBufferString(b)
	case map[string]interface{}:
		jsonBytes, _ := json.Marshal(b)
		opts.body = bytes.NewBuffer(jsonBytes)
		if _, ok := opts.headers["Content-Type"]; !ok {
			opts.headers["Content-Type"] = "application/json"
		}
	}

	switch t := m["timeout"].(type) {
	case int64:
		opts.timeout = time.Duration(t) * time.Millisecond
	case float64:
		opts.timeout = time.Duration(t) * time.Millisecond
	}
	return opts
}

// doHTTPRequest performs an HTTP request bound to the running script's
// context and returns the response as a JS object.
func (e *Engine) doHTTPRequest(method string, call goja.FunctionCall) goja.Value {
	if len(call.Arguments) < 1 {
		panic(e.runtime.NewTypeError(fmt.Sprintf("http.%s requires url", method)))
	}

	url := call.Arguments[0].String()
	opts := parseRequestOptions(call.Argument(1))

	ctx := e.ctx
	if opts.timeout > 0 {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, url, opts.body)
	if err != nil {
		panic(e.runtime.NewTypeError(fmt.Sprintf("failed to create request: %v", err)))
	}
	for k, v := range opts.headers {
		req.Header.Set(k, v)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		panic(e.runtime.NewGoError(fmt.Errorf("HTTP request failed: %w", err)))
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		panic(e.runtime.NewGoError(fmt.Errorf("failed to read response: %w", err)))
	}

	response := HTTPResponse{
		Status:  resp.StatusCode,
		Body:    string(bodyBytes),
		Headers: make(map[string]string),
		Ok:      resp.StatusCode >= 200 && resp.StatusCode < 300,
	}
	for k, v := range resp.Header {
		if len(v) > 0 {
			response.Headers[k] = v[0]
		}
	}

	var jsonBody map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &jsonBody); err == nil {
		response.JSON = jsonBody
	}

	responseObj := e.runtime.NewObject()
	responseObj.Set("status", response.Status)
	responseObj.Set("body", response.Body)
	responseObj.Set("headers", response.Headers)
	responseObj.Set("ok", response.Ok)
	if response.JSON != nil {
		responseObj.Set("json", response.JSON)
	} else {
		responseObj.Set("json", goja.Null())
	}
	return responseObj
}
