package config

import (
	"context"
	"strings"

	"github.com/mmdatafocus/settlement_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CompanyScopePlugin scopes queries/updates/deletes to the request's company_code
// when the model has a company_code column.
//
// NOTE:
// - Raw SQL is not scoped. Those queries must filter company_code themselves.
// - Bypass is explicit via context flags.
type CompanyScopePlugin struct{}

func NewCompanyScopePlugin() *CompanyScopePlugin { return &CompanyScopePlugin{} }

func (p *CompanyScopePlugin) Name() string { return "company_scope" }

func (p *CompanyScopePlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("company_scope:query", companyScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("company_scope:row", companyScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("company_scope:update", companyScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("company_scope:delete", companyScopeCallback); err != nil {
		return err
	}
	return nil
}

func companyScopeCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil || db.Statement.Schema == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil || shouldBypassCompanyScope(ctx) {
		return
	}
	companyCode := companyCodeFromContext(ctx)
	if companyCode == "" {
		return
	}
	if db.Statement.Schema.LookUpField("company_code") == nil {
		return
	}
	if whereHasCompanyCode(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: "company_code"},
				Value:  companyCode,
			},
		},
	})
}

func companyCodeFromContext(ctx context.Context) string {
	if v, ok := appctx.GetString(ctx, appctx.ContextKeyCompanyCode); ok {
		return v
	}
	return ""
}

func shouldBypassCompanyScope(ctx context.Context) bool {
	if v, ok := appctx.GetBool(ctx, appctx.ContextKeySkipCompanyScope); ok && v {
		return true
	}
	if v, ok := appctx.GetBool(ctx, appctx.ContextKeyIsAdmin); ok && v {
		return true
	}
	return false
}

func whereHasCompanyCode(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasCompanyCode(e) {
			return true
		}
	}
	return false
}

func exprHasCompanyCode(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsCompanyCode(v.Column)
	case clause.Neq:
		return colIsCompanyCode(v.Column)
	case clause.IN:
		return colIsCompanyCode(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasCompanyCode(x) {
				return true
			}
		}
		return false
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasCompanyCode(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		return strings.Contains(strings.ToLower(v.SQL), "company_code")
	default:
		return false
	}
}

func colIsCompanyCode(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "company_code")
	case clause.Column:
		return strings.EqualFold(c.Name, "company_code")
	default:
		return false
	}
}
