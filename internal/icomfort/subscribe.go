package icomfort

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// subscriptionPaths are the JSONPath topic sets requested per system after
// auth: first the system/zone/schedule state, then the secondary
// home/interface set.
var subscriptionPaths = []string{
	"1;/system;/zones;/schedules;",
	"1;/homes;/interfaces;",
}

// requestDataMessage asks the service to start queueing the named data paths
// for one system. A fresh correlation id accompanies every request.
type requestDataMessage struct {
	MessageType          string `json:"MessageType"`
	SenderID             string `json:"SenderID"`
	MessageID            string `json:"MessageID"`
	TargetID             string `json:"TargetID"`
	AdditionalParameters struct {
		JSONPath string `json:"JSONPath"`
	} `json:"AdditionalParameters"`
}

// commandMessage publishes a structured command payload to one system.
type commandMessage struct {
	MessageType string `json:"MessageType"`
	SenderID    string `json:"SenderID"`
	MessageID   string `json:"MessageID"`
	TargetID    string `json:"TargetID"`
	Data        any    `json:"Data"`
}

// classifyStatus maps a non-transport failure onto the error taxonomy.
func classifyStatus(op string, resp *wireResponse) error {
	switch {
	case resp.status == http.StatusOK || resp.status == http.StatusNoContent:
		return nil
	case resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden:
		return fmt.Errorf("%w: %s rejected with status %d", ErrUnauthorized, op, resp.status)
	default:
		return fmt.Errorf("%w: %s returned status %d: %s", ErrComms, op, resp.status, bodyExcerpt(resp.body))
	}
}

// subscribe issues the request-data calls for one system under the current
// bearer token.
func (c *Client) subscribe(ctx context.Context, sysID string) error {
	token := c.auth.token()
	if token == "" {
		return fmt.Errorf("%w: no bearer token held", ErrUnauthorized)
	}

	for _, path := range subscriptionPaths {
		msg := requestDataMessage{
			MessageType: "RequestData",
			SenderID:    c.cfg.ClientID,
			MessageID:   uuid.NewString(),
			TargetID:    sysID,
		}
		msg.AdditionalParameters.JSONPath = path

		body, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("%w: encode request-data: %v", ErrComms, err)
		}

		headers := map[string]string{
			"Content-Type":  "application/json",
			"Authorization": token,
		}
		resp, err := c.tr.do(ctx, http.MethodPost, c.cfg.RequestDataURL, headers, body)
		if err != nil {
			return err
		}
		if err := classifyStatus("request-data", resp); err != nil {
			return err
		}
	}

	c.log.Infow("subscribed", "sys_id", sysID)
	return nil
}

// publish sends a Command message targeted at one system.
func (c *Client) publish(ctx context.Context, sysID string, data any) error {
	token := c.auth.token()
	if token == "" {
		return fmt.Errorf("%w: no bearer token held", ErrUnauthorized)
	}

	msg := commandMessage{
		MessageType: "Command",
		SenderID:    c.cfg.ClientID,
		MessageID:   uuid.NewString(),
		TargetID:    sysID,
		Data:        data,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: encode command: %v", ErrComms, err)
	}

	headers := map[string]string{
		"Content-Type":  "application/json",
		"Authorization": token,
	}
	resp, err := c.tr.do(ctx, http.MethodPost, c.cfg.PublishURL, headers, body)
	if err != nil {
		return err
	}
	return classifyStatus("publish", resp)
}

// manualScheduleID computes the reserved manual-mode schedule slot for a
// zone: the manual block starts at a fixed base id and the slot for zone i is
// base + i. Setpoint and mode writes always address this slot, never the zone
// directly; that is the service's own write model.
func (c *Client) manualScheduleID(zoneIndex int) int {
	return c.cfg.ManualScheduleBase + zoneIndex
}

// schedulePayload shapes a period write against one schedule slot.
func schedulePayload(scheduleID int, period map[string]any) map[string]any {
	return map[string]any{
		"schedules": []map[string]any{
			{
				"id": scheduleID,
				"schedule": map[string]any{
					"periods": []map[string]any{
						{"id": 0, "period": period},
					},
				},
			},
		},
	}
}
