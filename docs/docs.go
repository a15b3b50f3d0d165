// Package docs registers the OpenAPI document of the gateway with swag so
// gin-swagger can serve it. Regenerate with `swag init -g cmd/barrierd/main.go`
// after changing handler annotations.
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
        "/camera": {
            "post": {
                "description": "Accepts one detection object or a batch under \"vrmMessages\". Repeats within the suppression window are acknowledged but not stored.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Camera"],
                "summary": "Ingest camera detections",
                "operationId": "postCamera",
                "parameters": [
                    {
                        "description": "Detection payload",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/services.CameraMessage"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.CameraResponse"}},
                    "400": {"description": "Unparseable payload", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "500": {"description": "Ledger write failed", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/barriers": {
            "get": {
                "description": "Returns the current state of every configured barrier.",
                "produces": ["application/json"],
                "tags": ["Barriers"],
                "summary": "List barriers",
                "operationId": "listBarriers",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListBarriersResponse"}}
                }
            }
        },
        "/barriers/{name}/pulse": {
            "post": {
                "description": "Sends one manual pulse, bypassing the enabled flag and the whitelist.",
                "produces": ["application/json"],
                "tags": ["Barriers"],
                "summary": "Pulse a barrier",
                "operationId": "pulseBarrier",
                "parameters": [
                    {"type": "string", "example": "Barrier1", "description": "Barrier name", "name": "name", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.PulseResponse"}},
                    "404": {"description": "Barrier not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "502": {"description": "Controller did not accept the pulse", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/barriers/{name}/enabled": {
            "put": {
                "description": "Toggles scheduled sweeps for the barrier. Camera and manual pulses are unaffected.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Barriers"],
                "summary": "Enable or disable a barrier",
                "operationId": "setBarrierEnabled",
                "parameters": [
                    {"type": "string", "example": "Barrier1", "description": "Barrier name", "name": "name", "in": "path", "required": true},
                    {"description": "Enabled flag", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.SetEnabledRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.BarrierStatus"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Barrier not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/whitelist": {
            "get": {
                "description": "Returns the cached authorized plates and the refresh state.",
                "produces": ["application/json"],
                "tags": ["Whitelist"],
                "summary": "Show the whitelist",
                "operationId": "getWhitelist",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.WhitelistResponse"}}
                }
            }
        },
        "/whitelist/refresh": {
            "post": {
                "description": "Fetches every configured source now. Fails with 502 when no source answered; the previous snapshot is kept.",
                "produces": ["application/json"],
                "tags": ["Whitelist"],
                "summary": "Refresh the whitelist",
                "operationId": "refreshWhitelist",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.WhitelistResponse"}},
                    "502": {"description": "All sources failed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/transactions": {
            "get": {
                "description": "Returns detections newest first. Supports weak ETag via If-None-Match and may return 304.",
                "produces": ["application/json"],
                "tags": ["Transactions"],
                "summary": "List ledger transactions (paginated)",
                "operationId": "listTransactions",
                "parameters": [
                    {"type": "string", "description": "Return 304 if ETag matches", "name": "If-None-Match", "in": "header"},
                    {"type": "integer", "description": "Filter by lane", "name": "lane_id", "in": "query"},
                    {"type": "boolean", "description": "Filter by sent flag", "name": "sent", "in": "query"},
                    {"type": "string", "description": "Filter by exact plate", "name": "plate", "in": "query"},
                    {"minimum": 1, "type": "integer", "default": 1, "description": "Page number", "name": "page", "in": "query"},
                    {"maximum": 500, "minimum": 1, "type": "integer", "default": 50, "description": "Items per page", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/handlers.ListTransactionsResponse"},
                        "headers": {"ETag": {"type": "string", "description": "Weak ETag for current result"}}
                    },
                    "304": {"description": "Not Modified", "schema": {"type": "string"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/transactions/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Transactions"],
                "summary": "Get one ledger transaction",
                "operationId": "getTransaction",
                "parameters": [
                    {"type": "integer", "description": "Transaction ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Transaction"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.BarrierStatus": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "lane_id": {"type": "integer"},
                "enabled": {"type": "boolean"},
                "api_down_behavior": {"type": "string"},
                "indicator": {"type": "string"},
                "liveness": {"type": "string"},
                "cursor": {"type": "string"},
                "last_plate": {"type": "string"},
                "last_pulse_at": {"type": "string"}
            }
        },
        "domain.AuthorizationEntry": {
            "type": "object",
            "properties": {
                "plate": {"type": "string"},
                "start": {"type": "string"},
                "finish": {"type": "string"}
            }
        },
        "domain.Transaction": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "created": {"type": "string"},
                "observed_at": {"type": "string"},
                "plate": {"type": "string"},
                "confidence": {"type": "integer"},
                "direction": {"type": "string"},
                "lane_id": {"type": "integer"},
                "camera_id": {"type": "integer"},
                "image1": {"type": "string"},
                "image2": {"type": "string"},
                "image3": {"type": "string"},
                "sent": {"type": "boolean"},
                "sent_at": {"type": "string"}
            }
        },
        "handlers.CameraResponse": {
            "type": "object",
            "properties": {
                "saved": {"type": "boolean", "example": true},
                "count": {"type": "integer", "example": 1},
                "suppressed": {"type": "integer", "example": 0},
                "failed": {"type": "integer", "example": 0}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "handlers.ListBarriersResponse": {
            "type": "object",
            "properties": {
                "barriers": {"type": "array", "items": {"$ref": "#/definitions/domain.BarrierStatus"}}
            }
        },
        "handlers.ListTransactionsResponse": {
            "type": "object",
            "properties": {
                "transactions": {"type": "array", "items": {"$ref": "#/definitions/domain.Transaction"}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        },
        "handlers.Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"},
                "has_next": {"type": "boolean"}
            }
        },
        "handlers.PulseResponse": {
            "type": "object",
            "properties": {
                "pulsed": {"type": "boolean", "example": true},
                "barrier": {"$ref": "#/definitions/domain.BarrierStatus"}
            }
        },
        "handlers.SetEnabledRequest": {
            "type": "object",
            "required": ["enabled"],
            "properties": {
                "enabled": {"type": "boolean", "example": false}
            }
        },
        "handlers.WhitelistResponse": {
            "type": "object",
            "properties": {
                "entries": {"type": "array", "items": {"$ref": "#/definitions/domain.AuthorizationEntry"}},
                "count": {"type": "integer"},
                "last_refresh": {"type": "string"},
                "degraded": {"type": "boolean"}
            }
        },
        "services.CameraMessage": {
            "type": "object",
            "properties": {
                "messageType": {"type": "string"},
                "captureTimeStamp": {"type": "string"},
                "vrm": {"type": "string", "example": "AB12CDE"},
                "confidence": {"type": "string"},
                "direction": {"type": "string"},
                "logicalDirection": {"type": "string"},
                "cameraSerial": {"type": "string", "example": "101"},
                "country": {"type": "string"},
                "trackingId": {"type": "string"},
                "laneId": {"type": "integer"},
                "images": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        }
    },
    "securityDefinitions": {
        "BasicAuth": {"type": "basic"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "Barrier Gateway API",
	Description:      "Camera ingestion, barrier dispatch and whitelist administration.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
