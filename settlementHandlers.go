package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/mmdatafocus/settlement_backend/config"
	"github.com/mmdatafocus/settlement_backend/middlewares"
	"github.com/mmdatafocus/settlement_backend/models"
	"github.com/mmdatafocus/settlement_backend/models/reports"
	"github.com/mmdatafocus/settlement_backend/utils"
	"github.com/mmdatafocus/settlement_backend/workflow"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	runSequenceKey   = "close:run_seq"
	exportLinkTTL    = 15 * time.Minute
	exportObjectPath = "close-runs/%s/%s.xlsx"
)

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ProcessValidationErrors(err))
		return false
	}
	return true
}

func authorizeCompany(c *gin.Context, companyCode string) bool {
	err := middlewares.AuthorizeCompany(c.Request.Context(), companyCode)
	if err == nil {
		return true
	}
	status := http.StatusForbidden
	if errors.Is(err, middlewares.ErrUnauthorized) {
		status = http.StatusUnauthorized
	}
	c.JSON(status, gin.H{"error": err.Error()})
	return false
}

// journalSink posts to the database when connected, otherwise to the process-local sink.
func (s *apiServer) journalSink() workflow.JournalSink {
	if db := s.db(); db != nil {
		return workflow.NewGormJournalSink(db, s.logger)
	}
	return s.memory
}

func (s *apiServer) balances() workflow.GLBalanceReader {
	if db := s.db(); db != nil {
		return workflow.NewGormJournalSink(db, s.logger)
	}
	return s.memory
}

type matchRequest struct {
	PurchaseOrder *models.PurchaseOrder   `json:"purchase_order" binding:"required"`
	GoodsReceipts []*models.GoodsReceipt  `json:"goods_receipts" binding:"dive"`
	VendorInvoice *models.VendorInvoice   `json:"vendor_invoice" binding:"required"`
	Tolerance     *models.ToleranceConfig `json:"tolerance"`
}

type matchResponse struct {
	Result            models.MatchResult `json:"result"`
	QuantitiesInRange bool               `json:"quantities_in_range"`
}

func (s *apiServer) matchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req matchRequest
		if !bindJSON(c, &req) {
			return
		}
		if !authorizeCompany(c, req.PurchaseOrder.CompanyCode) {
			return
		}
		tolerance := workflow.LoadToleranceConfig()
		if req.Tolerance != nil {
			tolerance = *req.Tolerance
		}
		matcher := workflow.NewThreeWayMatcher(tolerance, s.logger)
		c.JSON(http.StatusOK, matchResponse{
			Result:            matcher.Validate(req.PurchaseOrder, req.GoodsReceipts, req.VendorInvoice),
			QuantitiesInRange: matcher.CheckQuantities(req.PurchaseOrder, req.GoodsReceipts),
		})
	}
}

type postDocument struct {
	Kind     string          `json:"kind" binding:"required"`
	Document json.RawMessage `json:"document" binding:"required"`
}

type postRequest struct {
	CompanyCode string                   `json:"company_code" binding:"required"`
	P2P         *models.P2PDocumentChain `json:"p2p"`
	O2C         *models.O2CDocumentChain `json:"o2c"`
	Documents   []postDocument           `json:"documents" binding:"dive"`
}

type postResponse struct {
	Entries []models.JournalEntry   `json:"entries"`
	Posting workflow.PostingSummary `json:"posting"`
}

func decodeDocument(d postDocument) (models.BusinessDocument, error) {
	kind, err := models.ParseDocumentKind(d.Kind)
	if err != nil {
		return nil, err
	}
	var doc models.BusinessDocument
	switch kind {
	case models.DocumentKindPurchaseOrder:
		doc = &models.PurchaseOrder{}
	case models.DocumentKindGoodsReceipt:
		doc = &models.GoodsReceipt{}
	case models.DocumentKindVendorInvoice:
		doc = &models.VendorInvoice{}
	case models.DocumentKindApPayment, models.DocumentKindCustomerReceipt:
		doc = &models.Payment{}
	case models.DocumentKindDelivery:
		doc = &models.Delivery{}
	case models.DocumentKindCustomerInvoice:
		doc = &models.CustomerInvoice{}
	default:
		return nil, fmt.Errorf("unsupported document kind %q", d.Kind)
	}
	if err := json.Unmarshal(d.Document, doc); err != nil {
		return nil, err
	}
	if p, ok := doc.(*models.Payment); ok {
		p.IsVendor = kind == models.DocumentKindApPayment
	}
	if err := binding.Validator.ValidateStruct(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func postingErrorStatus(err error) int {
	switch {
	case errors.Is(err, workflow.ErrPeriodClosed),
		errors.Is(err, workflow.ErrOutsidePeriod),
		errors.Is(err, workflow.ErrNoFiscalPeriod):
		return http.StatusConflict
	case errors.Is(err, models.ErrUnbalancedEntry),
		errors.Is(err, models.ErrDebitAndCredit),
		errors.Is(err, models.ErrEmptyEntry):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// postHandler turns documents into journal entries with a fresh poster, so replaying a
// request derives the same entry ids and the sink drops the repeats.
func (s *apiServer) postHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req postRequest
		if !bindJSON(c, &req) {
			return
		}
		if !authorizeCompany(c, req.CompanyCode) {
			return
		}

		docs := make([]models.BusinessDocument, 0, len(req.Documents))
		for i, d := range req.Documents {
			doc, err := decodeDocument(d)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("documents[%d]: %s", i, err)})
				return
			}
			docs = append(docs, doc)
		}

		poster := workflow.NewDocumentPoster(workflow.LoadAccountMapping(), s.logger)
		var entries []models.JournalEntry
		if req.P2P != nil {
			entries = append(entries, poster.PostP2PChain(*req.P2P)...)
		}
		if req.O2C != nil {
			entries = append(entries, poster.PostO2CChain(*req.O2C)...)
		}
		entries = append(entries, poster.PostAll(docs...)...)

		for _, e := range entries {
			if e.CompanyCode != req.CompanyCode {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("document %s belongs to company %s", e.DocumentId, e.CompanyCode)})
				return
			}
		}

		ctx := utils.SetCompanyCodeInContext(c.Request.Context(), req.CompanyCode)
		summary, err := s.journalSink().PostEntries(ctx, entries, "")
		if err != nil {
			c.JSON(postingErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, postResponse{Entries: entries, Posting: summary})
	}
}

type reconcileRequest struct {
	CompanyCode string                     `json:"company_code" binding:"required"`
	AsOfDate    string                     `json:"as_of_date" binding:"required,datetime=2006-01-02"`
	GlBalances  map[string]decimal.Decimal `json:"gl_balances"`
	Subledgers  workflow.SubledgerSnapshot `json:"subledgers"`
	CloseRunId  string                     `json:"close_run_id"`
}

type reconcileResponse struct {
	Report  models.FullReconciliationReport `json:"report"`
	Summary string                          `json:"summary"`
}

// reconcileHandler reads GL balances from the ledger unless the request supplies them.
func (s *apiServer) reconcileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reconcileRequest
		if !bindJSON(c, &req) {
			return
		}
		if !authorizeCompany(c, req.CompanyCode) {
			return
		}
		asOf, _ := time.Parse("2006-01-02", req.AsOfDate)
		ctx := utils.SetCompanyCodeInContext(c.Request.Context(), req.CompanyCode)

		balances := req.GlBalances
		if balances == nil {
			var err error
			balances, err = s.balances().GLBalances(ctx, req.CompanyCode, asOf)
			if err != nil {
				config.LogError(s.logger, "settlementHandlers.go", "reconcileHandler", "load GL balances", req.CompanyCode, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}

		engine := workflow.NewReconciliationEngine(workflow.LoadReconciliationConfig(), s.logger)
		report := engine.FullReconciliation(req.CompanyCode, asOf, balances, req.Subledgers)

		if db := s.db(); db != nil {
			if err := workflow.SaveReconciliationReport(ctx, db, report, req.CloseRunId); err != nil {
				config.LogError(s.logger, "settlementHandlers.go", "reconcileHandler", "save reconciliation report", req.CompanyCode, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, reconcileResponse{Report: report, Summary: report.Summary()})
	}
}

type closeRequest struct {
	CompanyCode string                      `json:"company_code" binding:"required"`
	Year        int                         `json:"year" binding:"required,gte=1900,lte=9999"`
	Period      int                         `json:"period" binding:"required,gte=1,lte=12"`
	YearEnd     bool                        `json:"year_end"`
	Schedule    *models.CloseSchedule       `json:"schedule"`
	Config      *workflow.CloseEngineConfig `json:"config"`
	Data        workflow.CloseData          `json:"data"`
	// PeriodStatus stands in for the calendar when no database is connected.
	PeriodStatus models.PeriodStatus `json:"period_status" binding:"omitempty,oneof=Open SoftClosed Closed Locked"`
}

// newCloseRequest seeds Config with the loaded defaults, so a request that sets only
// some config fields keeps the rest.
func newCloseRequest() closeRequest {
	cfg := workflow.LoadCloseEngineConfig()
	return closeRequest{Config: &cfg}
}

// resolvePeriod prefers the stored calendar entry for the month.
func (s *apiServer) resolvePeriod(ctx context.Context, req closeRequest) (models.FiscalPeriod, error) {
	period := models.NewMonthlyPeriod(req.Year, req.Period)
	db := s.db()
	if db == nil {
		if req.PeriodStatus != "" {
			period.Status = req.PeriodStatus
		}
		return period, nil
	}
	stored, err := models.FindFiscalPeriodForDate(ctx, db, req.CompanyCode, period.StartDate)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return period, nil
	}
	if err != nil {
		return period, err
	}
	return stored, nil
}

func (req closeRequest) schedule() models.CloseSchedule {
	if req.Schedule != nil {
		return *req.Schedule
	}
	if req.YearEnd {
		return models.YearEndSchedule(req.CompanyCode)
	}
	return models.StandardMonthlySchedule(req.CompanyCode)
}

func (s *apiServer) closeEngine(req *closeRequest) *workflow.CloseEngine {
	cfg := workflow.LoadCloseEngineConfig()
	if req.Config != nil {
		cfg = *req.Config
	}
	var balances workflow.GLBalanceReader = &req.Data
	if req.Data.GlBalances == nil {
		balances = s.balances()
	}
	handlers := workflow.BuildCloseHandlers(workflow.CloseHandlerOptions{
		Data:           &req.Data,
		Balances:       balances,
		Accruals:       workflow.NewAccrualGenerator(cfg.AccrualConfig(workflow.LoadAccrualGeneratorConfig()), s.logger),
		Depreciation:   workflow.NewDepreciationRunGenerator(workflow.LoadDepreciationRunConfig(), s.logger),
		Reconciliation: workflow.NewReconciliationEngine(workflow.LoadReconciliationConfig(), s.logger),
		TaxAccounts:    workflow.LoadTaxAccounts(),
		Logger:         s.logger,
	})
	engine := workflow.NewCloseEngine(cfg, handlers, s.logger)
	engine.RunSequence = func(ctx context.Context) (int64, error) {
		return config.GetRedisCounter(ctx, runSequenceKey)
	}
	return engine
}

func (s *apiServer) closeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		req := newCloseRequest()
		if !bindJSON(c, &req) {
			return
		}
		if !authorizeCompany(c, req.CompanyCode) {
			return
		}
		ctx, span := tracer.Start(utils.SetCompanyCodeInContext(c.Request.Context(), req.CompanyCode), "closeHandler")
		defer span.End()
		span.SetAttributes(
			attribute.String("close.company_code", req.CompanyCode),
			attribute.Int("close.year", req.Year),
			attribute.Int("close.period", req.Period),
		)

		period, err := s.resolvePeriod(ctx, req)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		service := workflow.NewCloseService(s.closeEngine(&req), s.journalSink(), s.db(), s.logger)
		out, err := service.RunClose(ctx, req.CompanyCode, period, req.schedule())
		switch {
		case errors.Is(err, workflow.ErrCloseInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		case errors.Is(err, workflow.ErrCloseNotReady):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "readiness": out.Readiness})
			return
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		span.SetAttributes(attribute.String("close.run_id", out.Run.RunId), attribute.String("close.status", string(out.Run.Status)))
		c.JSON(http.StatusOK, out)
	}
}

func (s *apiServer) closeReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		req := newCloseRequest()
		if !bindJSON(c, &req) {
			return
		}
		if !authorizeCompany(c, req.CompanyCode) {
			return
		}
		ctx := utils.SetCompanyCodeInContext(c.Request.Context(), req.CompanyCode)
		period, err := s.resolvePeriod(ctx, req)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, s.closeEngine(&req).ValidateCloseReadiness(req.CompanyCode, period))
	}
}

// loadCloseRun answers 404 itself and checks the caller may see the run's company.
func (s *apiServer) loadCloseRun(c *gin.Context) (models.CloseRunRecord, bool) {
	service := workflow.NewCloseService(nil, nil, s.db(), s.logger)
	rec, err := service.GetCloseRun(c.Request.Context(), c.Param("runId"))
	if errors.Is(err, utils.ErrorRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return rec, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return rec, false
	}
	if !authorizeCompany(c, rec.CompanyCode) {
		return rec, false
	}
	return rec, true
}

func (s *apiServer) getCloseRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, ok := s.loadCloseRun(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

// exportCloseRunHandler streams the run as a workbook, or with upload=true stores it in
// GCS and returns a signed link.
func (s *apiServer) exportCloseRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, ok := s.loadCloseRun(c)
		if !ok {
			return
		}
		ctx := utils.SetCompanyCodeInContext(c.Request.Context(), rec.CompanyCode)

		var entries []models.JournalEntry
		if db := s.db(); db != nil {
			var err error
			entries, err = workflow.LoadCloseRunEntries(ctx, db, rec.CompanyCode, rec.RunId)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		} else if s.memory != nil {
			entries = s.memory.RunEntries(rec.RunId)
		}

		f, err := reports.ExportCloseRun(rec, entries)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		data, err := reports.WorkbookBytes(f)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if c.Query("upload") != "true" {
			c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, rec.RunId))
			c.Data(http.StatusOK, utils.XlsxContentType, data)
			return
		}

		// Saved runs do not change, so an existing export is reused.
		objectName := fmt.Sprintf(exportObjectPath, rec.CompanyCode, rec.RunId)
		exists, err := utils.ObjectExistsInGCS(ctx, objectName)
		if err != nil {
			config.LogError(s.logger, "settlementHandlers.go", "exportCloseRunHandler", "check export", objectName, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		uri := utils.GCSObjectURI(objectName)
		if !exists {
			uri, err = utils.UploadBytesToGCS(ctx, objectName, data, utils.XlsxContentType)
			if err != nil {
				config.LogError(s.logger, "settlementHandlers.go", "exportCloseRunHandler", "upload export", objectName, err)
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
		}
		url, err := utils.SignedDownloadURL(ctx, objectName, exportLinkTTL)
		if err != nil {
			config.LogError(s.logger, "settlementHandlers.go", "exportCloseRunHandler", "sign export url", objectName, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"run_id":     rec.RunId,
			"object":     uri,
			"url":        url,
			"expires_at": time.Now().Add(exportLinkTTL).UTC().Format(time.RFC3339),
		})
	}
}

type reverseRequest struct {
	CompanyCode  string `json:"company_code" binding:"required"`
	EntryId      string `json:"entry_id" binding:"required,uuid"`
	ReversalDate string `json:"reversal_date" binding:"required,datetime=2006-01-02"`
	Reason       string `json:"reason" binding:"required"`
}

type reverseResponse struct {
	Entry   models.JournalEntry     `json:"entry"`
	Posting workflow.PostingSummary `json:"posting"`
}

func (s *apiServer) entryLookup() workflow.EntryLookup {
	if db := s.db(); db != nil {
		return workflow.NewGormJournalSink(db, s.logger)
	}
	return s.memory
}

// reverseHandler posts the mirror of a posted entry. Repeating the call is a duplicate,
// not a second reversal.
func (s *apiServer) reverseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reverseRequest
		if !bindJSON(c, &req) {
			return
		}
		if !authorizeCompany(c, req.CompanyCode) {
			return
		}
		reversalDate, _ := time.Parse("2006-01-02", req.ReversalDate)
		ctx := utils.SetCompanyCodeInContext(c.Request.Context(), req.CompanyCode)

		entry, summary, err := workflow.ReversePosted(ctx, s.entryLookup(), s.journalSink(), workflow.ReversalRequest{
			CompanyCode:  req.CompanyCode,
			EntryId:      uuid.MustParse(req.EntryId),
			ReversalDate: reversalDate,
			Reason:       req.Reason,
		})
		switch {
		case errors.Is(err, workflow.ErrUnknownReversalReason):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		case errors.Is(err, utils.ErrorRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		case err != nil:
			c.JSON(postingErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, reverseResponse{Entry: entry, Posting: summary})
	}
}

type listCloseRunsQuery struct {
	CompanyCode string `form:"company_code" binding:"required"`
	After       string `form:"after"`
	Limit       int    `form:"limit" binding:"omitempty,gte=1,lte=100"`
}

func (s *apiServer) listCloseRunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q listCloseRunsQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, utils.ProcessValidationErrors(err))
			return
		}
		if !authorizeCompany(c, q.CompanyCode) {
			return
		}
		db := s.db()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "db is nil"})
			return
		}
		page, err := workflow.ListCloseRuns(c.Request.Context(), db, q.CompanyCode, &q.After, q.Limit)
		if errors.Is(err, models.ErrInvalidCursor) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, page)
	}
}
