package cli

import (
	"encoding/json"
	"io"
)

// Response is the JSON envelope for --format json.
type Response struct {
	Status string `json:"status"` // "ok" or "error"
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

func writeResult(w io.Writer, format string, data any, err error) error {
	if format == "json" {
		resp := Response{Status: "ok", Data: data}
		if err != nil {
			resp.Status = "error"
			resp.Error = err.Error()
		}
		return json.NewEncoder(w).Encode(resp)
	}
	// Text mode leaves err to the caller, which prints it on stderr.
	return nil
}
