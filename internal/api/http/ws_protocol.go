package apihttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/t3m14/tours-sub000/internal/domain"
	"github.com/t3m14/tours-sub000/internal/search"
)

const (
	frameStatus            = "status"
	framePageResults       = "page_results"
	frameError             = "error"
	frameConnectionClosing = "connection_closing"
)

const (
	actionChangePage      = "change_page"
	actionChangePerPage   = "change_per_page"
	actionGetStatus       = "get_status"
	actionGetResults      = "get_results"
	actionCloseConnection = "close_connection"
)

var errMalformedCommand = errors.New("invalid message format")

type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// wsCommand is a client frame. Page fields are pointers so that an absent
// value can be told apart from zero.
type wsCommand struct {
	Action  string `json:"action"`
	Page    *int   `json:"page,omitempty"`
	PerPage *int   `json:"per_page,omitempty"`
}

type statusPayload struct {
	domain.SearchStatus
	Pagination domain.Pagination `json:"pagination"`
}

type pageResultsPayload struct {
	Status     domain.SearchStatus   `json:"status"`
	Hotels     []domain.OfferedHotel `json:"hotels"`
	Pagination domain.Pagination     `json:"pagination"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type closingPayload struct {
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func parseCommand(data []byte) (wsCommand, error) {
	var cmd wsCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return wsCommand{}, errMalformedCommand
	}
	cmd.Action = strings.TrimSpace(cmd.Action)
	if cmd.Action == "" {
		return wsCommand{}, errMalformedCommand
	}
	switch cmd.Action {
	case actionChangePage:
		if cmd.Page == nil {
			return wsCommand{}, fmt.Errorf("%s requires page", cmd.Action)
		}
	case actionChangePerPage:
		if cmd.PerPage == nil {
			return wsCommand{}, fmt.Errorf("%s requires per_page", cmd.Action)
		}
	case actionGetStatus, actionGetResults, actionCloseConnection:
	default:
		return wsCommand{}, fmt.Errorf("unknown action: %s", cmd.Action)
	}
	return cmd, nil
}

func encodeFrame(frameType string, data any) ([]byte, error) {
	return json.Marshal(wsMessage{Type: frameType, Data: data})
}

func statusFrame(status domain.SearchStatus, pagination domain.Pagination) ([]byte, error) {
	return encodeFrame(frameStatus, statusPayload{SearchStatus: status, Pagination: pagination})
}

func pageResultsFrame(status domain.SearchStatus, hotels []domain.OfferedHotel, pagination domain.Pagination) ([]byte, error) {
	if hotels == nil {
		hotels = []domain.OfferedHotel{}
	}
	return encodeFrame(framePageResults, pageResultsPayload{Status: status, Hotels: hotels, Pagination: pagination})
}

func errorFrame(message string) ([]byte, error) {
	return encodeFrame(frameError, errorPayload{Message: message})
}

func closingFrame(id domain.SearchJobID) ([]byte, error) {
	return encodeFrame(frameConnectionClosing, closingPayload{
		Message:   "connection closed by client request",
		RequestID: id.String(),
	})
}

// frameFromUpdate renders a monitor update for the wire.
func frameFromUpdate(update search.Update) ([]byte, error) {
	switch update.Kind {
	case search.UpdateStatus:
		return statusFrame(update.Status, update.Pagination)
	case search.UpdateResults:
		return pageResultsFrame(update.Status, update.Hotels, update.Pagination)
	case search.UpdateError:
		return errorFrame(update.Message)
	default:
		return nil, fmt.Errorf("unsupported update kind %q", update.Kind)
	}
}
