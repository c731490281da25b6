package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/pricing_backend/config"
	"github.com/mmdatafocus/pricing_backend/models"
	"github.com/mmdatafocus/pricing_backend/models/reports"
	"github.com/mmdatafocus/pricing_backend/utils"
	"github.com/mmdatafocus/pricing_backend/workflow"
	"github.com/sirupsen/logrus"
)

type PubSubMessage struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type rebuildRequest struct {
	OwnerType models.LedgerOwnerType `json:"owner_type" validate:"required,oneof=budget group"`
	OwnerId   int                    `json:"owner_id" validate:"required,gt=0"`
	// Async publishes the request to Pub/Sub instead of rebuilding inline.
	Async bool `json:"async"`
}

func quoteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		e := getEngine()
		var req workflow.QuoteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		res, err := e.quotes.Quote(c.Request.Context(), req)
		if err != nil {
			status := http.StatusInternalServerError
			body := gin.H{"error": err.Error()}
			if verr := req.Validate(); verr != nil {
				status = http.StatusBadRequest
				body["fields"] = utils.ProcessValidationErrors(verr)
			}
			_ = c.Error(err)
			c.JSON(status, body)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func rebuildHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		e := getEngine()
		var req rebuildRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := utils.ValidateStruct(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
			return
		}
		ctx := c.Request.Context()
		cid, _ := utils.GetCorrelationIdFromContext(ctx)

		if req.Async {
			requestedBy, _ := utils.GetRequestedByFromContext(ctx)
			msgId, err := config.PublishLedgerRebuild(ctx, config.LedgerRebuildMessage{
				OwnerType:     string(req.OwnerType),
				OwnerId:       req.OwnerId,
				RequestedAt:   time.Now().UTC(),
				RequestedBy:   requestedBy,
				CorrelationId: cid,
			})
			if err != nil {
				_ = c.Error(err)
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"message_id": msgId, "correlation_id": cid})
			return
		}

		res, err := e.recalc.Recalculate(ctx, models.LedgerOwner{Type: req.OwnerType, Id: req.OwnerId})
		if err != nil {
			_ = c.Error(err)
			c.JSON(rebuildErrorStatus(err), gin.H{"error": err.Error(), "correlation_id": cid})
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func rebuildErrorStatus(err error) int {
	switch {
	case errors.Is(err, workflow.ErrRebuildInProgress):
		return http.StatusConflict
	case errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrRebuildFailed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// ledgerPubSubHandler consumes push deliveries of ledger rebuild requests.
// 204 acks; 500 asks Pub/Sub to redeliver.
func ledgerPubSubHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		e := getEngine()
		logger := config.GetLogger()
		var msg PubSubMessage

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "handlers.go", "ledgerPubSubHandler", "io.ReadAll", nil, err)
			c.Status(http.StatusNoContent)
			return
		}
		// byte slice unmarshalling handles base64 decoding.
		if err := json.Unmarshal(body, &msg); err != nil {
			config.LogError(logger, "handlers.go", "ledgerPubSubHandler", "Unmarshal body", string(body), err)
			c.Status(http.StatusNoContent)
			return
		}
		var m config.LedgerRebuildMessage
		if err := json.Unmarshal(msg.Message.Data, &m); err != nil {
			config.LogError(logger, "handlers.go", "ledgerPubSubHandler", "Unmarshal pubsub message", string(msg.Message.Data), err)
			c.Status(http.StatusNoContent)
			return
		}
		owner := models.LedgerOwner{Type: models.LedgerOwnerType(m.OwnerType), Id: m.OwnerId}
		if !owner.Type.IsValid() || owner.Id <= 0 {
			config.LogError(logger, "handlers.go", "ledgerPubSubHandler", "Invalid pubsub message", m, fmt.Errorf("owner_type/owner_id required"))
			c.Status(http.StatusNoContent)
			return
		}

		correlationId := m.CorrelationId
		if correlationId == "" {
			correlationId = msg.Message.ID
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), correlationId)
		if m.RequestedBy != "" {
			ctx = utils.SetRequestedByInContext(ctx, m.RequestedBy)
		}

		_, err = e.recalc.Recalculate(ctx, owner)
		switch {
		case err == nil:
			c.Status(http.StatusNoContent)
		case errors.Is(err, utils.ErrorRecordNotFound):
			logger.WithFields(logrus.Fields{
				"owner":      owner.String(),
				"message_id": msg.Message.ID,
			}).Warn("ledger owner not found; dropping message")
			c.Status(http.StatusNoContent)
		default:
			logger.WithFields(logrus.Fields{
				"owner":          owner.String(),
				"message_id":     msg.Message.ID,
				"correlation_id": correlationId,
			}).Error("pubsub ledger rebuild failed: " + err.Error())
			c.Status(http.StatusInternalServerError)
		}
	}
}

func ownerFromParams(c *gin.Context) (models.LedgerOwner, bool) {
	owner := models.LedgerOwner{Type: models.LedgerOwnerType(c.Param("owner_type"))}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 || !owner.Type.IsValid() {
		return owner, false
	}
	owner.Id = id
	return owner, true
}

func ledgerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		e := getEngine()
		owner, ok := ownerFromParams(c)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ledger owner"})
			return
		}
		ctx := c.Request.Context()
		summary, err := e.ledger.GetSummary(ctx, owner)
		if errors.Is(err, utils.ErrorRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ledger not built"})
			return
		}
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		records, err := e.ledger.ListConsumption(ctx, owner)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"summary": summary, "records": records})
	}
}

// ledgerExportHandler streams the ledger as XLSX, or stores it in GCS when
// ?upload=true.
func ledgerExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		e := getEngine()
		owner, ok := ownerFromParams(c)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ledger owner"})
			return
		}
		ctx := c.Request.Context()
		summary, err := e.ledger.GetSummary(ctx, owner)
		if err != nil && !errors.Is(err, utils.ErrorRecordNotFound) {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		records, err := e.ledger.ListConsumption(ctx, owner)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		data, err := reports.ExportLedgerWorkbook(summary, records)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if c.Query("upload") == "true" {
			if !utils.GCSConfigured() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "GCS_BUCKET is not configured"})
				return
			}
			location, err := utils.UploadReportToGCS(ctx, reports.LedgerExportObjectName(owner, time.Now()), data, utils.XlsxContentType)
			if err != nil {
				_ = c.Error(err)
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"location": location})
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=ledger-%s-%d.xlsx", owner.Type, owner.Id))
		c.Data(http.StatusOK, utils.XlsxContentType, data)
	}
}

func invalidateRatesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := getEngine().invalidateRates(c.Request.Context()); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}
