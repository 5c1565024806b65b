package http

import (
	"github.com/canopyhq/canopy/internal/service"
)

const maxRequestBodySize = 1 << 20 // 1 MB
const maxImportSize = 16 << 20     // 16 MB spreadsheet upload

// Handlers holds the HTTP handlers and their service dependencies. Every
// handler passes the request's capability set through to the services;
// access decisions belong to the storage gate, not this layer.
type Handlers struct {
	Entities    *service.EntityStore
	Types       *service.TypeService
	Orgs        *service.OrgService
	Auth        *service.AuthService
	Slugs       *service.SlugIndex
	Importer    *service.Importer
	Delivery    *service.Delivery
	Invalidator *service.Invalidator
}
