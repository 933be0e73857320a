package hue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dokzlo13/huebridge/internal/transport"
)

// replyItem is one entry of a write reply:
//
//	[{"success":{"/lights/1/state/bri":127}},{"error":{...}}]
//
// Deletes answer with a plain string: [{"success":"/lights/1 deleted"}].
type replyItem struct {
	Success json.RawMessage `json:"success"`
	Error   *BridgeError    `json:"error"`
}

// checkStatus maps HTTP statuses the bridge API does not use for normal replies.
func checkStatus(req *transport.Request, resp *transport.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrUnknownResource, req.Path)
	case resp.StatusCode >= 500:
		return &transport.Error{
			Method: req.Method,
			Path:   req.Path,
			Err:    &transport.StatusError{StatusCode: resp.StatusCode, Body: string(resp.Body)},
		}
	}

	// The bridge sometimes explains a 4xx with a regular error array.
	if errs := replyErrors(resp.Body); errs != nil {
		return errs
	}
	return fmt.Errorf("%w: %w", ErrBridgeRejected, &transport.StatusError{StatusCode: resp.StatusCode, Body: string(resp.Body)})
}

// parseReply turns a write reply into the echoed attributes keyed by their last
// address segment, or the bridge errors it carries.
func parseReply(req *transport.Request, resp *transport.Response) (map[string]any, error) {
	if err := checkStatus(req, resp); err != nil {
		return nil, err
	}

	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 {
		return map[string]any{}, nil
	}

	var items []replyItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("%w: unreadable reply: %w", ErrBridgeRejected, err)
	}

	success := make(map[string]any)
	var errs []error
	for _, item := range items {
		if item.Error != nil {
			errs = append(errs, item.Error)
			continue
		}
		mergeSuccess(success, item.Success)
	}
	if len(errs) > 0 {
		return success, errors.Join(errs...)
	}
	return success, nil
}

func mergeSuccess(dst map[string]any, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		for addr, v := range obj {
			dst[attrName(addr)] = v
		}
		return
	}

	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		dst["message"] = msg
	}
}

// attrName reduces "/lights/1/state/bri" to "bri"; plain keys such as "id" pass through.
func attrName(addr string) string {
	if i := strings.LastIndex(addr, "/"); i >= 0 {
		return addr[i+1:]
	}
	return addr
}

// replyErrors returns the bridge errors in body, or nil if body is not an error array.
func replyErrors(body []byte) error {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '[' {
		return nil
	}
	var items []replyItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil
	}
	var errs []error
	for _, item := range items {
		if item.Error != nil {
			errs = append(errs, item.Error)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// decodeDocument decodes a read reply. Reads of a missing resource answer with an
// error array instead of an object.
func decodeDocument(req *transport.Request, resp *transport.Response, out any) error {
	if err := checkStatus(req, resp); err != nil {
		return err
	}
	if errs := replyErrors(resp.Body); errs != nil {
		return errs
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", req.Path, err)
	}
	return nil
}
