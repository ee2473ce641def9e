// internal/controller/campaign_controller.go
package controller

import (
    "encoding/json"
    "errors"
    "net/http"
    "strings"

    "go.uber.org/zap"

    "github.com/unclebandit/crm-pipeline/internal/model"
    "github.com/unclebandit/crm-pipeline/internal/queue"
    "github.com/unclebandit/crm-pipeline/internal/rules"
)

// UserHeader carries the operator id. Authentication happens in front of
// this service.
const UserHeader = "X-User-ID"

// CampaignController accepts campaign jobs and queues them on campaign:start.
type CampaignController struct {
    Bus queue.Bus
    Log *zap.Logger
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
    var body struct {
        Rules           json.RawMessage `json:"rules"`
        MessageTemplate string          `json:"messageTemplate"`
    }
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
        writeMessage(w, http.StatusBadRequest, "invalid body")
        return
    }
    if len(body.Rules) == 0 || string(body.Rules) == "null" || strings.TrimSpace(body.MessageTemplate) == "" {
        writeMessage(w, http.StatusBadRequest, "Rules and message template are required.")
        return
    }
    if _, err := rules.Parse(body.Rules); err != nil {
        var ruleErr *rules.Error
        if errors.As(err, &ruleErr) {
            writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid rules", "error": ruleErr.Error(), "path": ruleErr.Path})
            return
        }
        writeMessage(w, http.StatusBadRequest, "invalid rules")
        return
    }

    job := model.CampaignJob{
        Rules:           body.Rules,
        MessageTemplate: body.MessageTemplate,
        UserID:          r.Header.Get(UserHeader),
    }
    if err := queue.PublishJSON(r.Context(), c.Bus, model.TopicCampaignStart, job); err != nil {
        c.Log.Error("could not queue campaign job", zap.Error(err))
        writeMessage(w, http.StatusInternalServerError, "Could not queue campaign job.")
        return
    }
    writeMessage(w, http.StatusAccepted, "Campaign has been queued for execution.")
}
