// Package docs registers the OpenAPI document served by gin-swagger.
// Regenerate with: swag init -g cmd/tradeeval/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/healthz": {
            "get": {"tags": ["health"], "summary": "Health check", "responses": {"200": {"description": "OK"}}}
        },
        "/readyz": {
            "get": {"tags": ["health"], "summary": "Readiness check", "responses": {"200": {"description": "OK"}, "503": {"description": "not ready"}}}
        },
        "/api/v1/trades/evaluate": {
            "post": {
                "tags": ["trades"],
                "summary": "Evaluate a trade proposal",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"type": "object"}}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "empty or invalid trade"}}
            }
        },
        "/api/v1/trades/{trade_id}": {
            "get": {
                "tags": ["trades"],
                "summary": "Get the logged outcome record of a trade",
                "parameters": [{"in": "path", "name": "trade_id", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "not found"}}
            }
        },
        "/api/v1/trades/{trade_id}/outcome": {
            "post": {
                "tags": ["trades"],
                "summary": "Resolve the outcome of an evaluated trade",
                "parameters": [
                    {"in": "path", "name": "trade_id", "required": true, "type": "string"},
                    {"in": "body", "name": "body", "required": true, "schema": {"type": "object", "properties": {"outcome": {"type": "string", "enum": ["ACCEPTED", "REJECTED", "COUNTERED", "EXPIRED"]}}}}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "invalid outcome"}, "404": {"description": "not found"}}
            }
        },
        "/api/v1/calibration/summary": {
            "get": {"tags": ["calibration"], "summary": "Global calibration report", "parameters": [
                {"in": "query", "name": "since", "type": "string"},
                {"in": "query", "name": "until", "type": "string"},
                {"in": "query", "name": "mode", "type": "string"},
                {"in": "query", "name": "segment", "type": "string"}
            ], "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/calibration/segments": {
            "get": {"tags": ["calibration"], "summary": "Per-segment calibration with the worst segments ranked", "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/calibration/drift": {
            "get": {"tags": ["calibration"], "summary": "Feature drift between consecutive windows", "parameters": [
                {"in": "query", "name": "feature", "type": "string", "enum": ["lineup_impact", "vorp", "market", "behavioral"]}
            ], "responses": {"200": {"description": "OK"}, "400": {"description": "unknown feature"}}}
        },
        "/api/v1/calibration/intercepts": {
            "get": {"tags": ["calibration"], "summary": "Active weights, segment intercepts, shadows and promotions", "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/calibration/alerts": {
            "get": {"tags": ["calibration"], "summary": "Current calibration and drift alerts", "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/recalibration/run": {
            "post": {"tags": ["model"], "summary": "Run one recalibration cycle now", "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/model/rollback": {
            "post": {"tags": ["model"], "summary": "Re-activate an older weights version as a new version", "parameters": [
                {"in": "body", "name": "body", "required": true, "schema": {"type": "object", "properties": {"version": {"type": "integer"}, "note": {"type": "string"}}}}
            ], "responses": {"200": {"description": "OK"}, "404": {"description": "version not found"}}}
        },
        "/api/v1/market/values": {
            "put": {"tags": ["market"], "summary": "Upsert player market value snapshots", "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/system-settings/switches": {
            "get": {"tags": ["settings"], "summary": "List feature switches", "responses": {"200": {"description": "OK"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Trade Evaluator API",
	Description:      "Fantasy trade evaluation, calibration monitoring and intercept recalibration.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
