// Package docs holds the Swagger 2.0 description of the HTTP API served at
// /swagger/index.html.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/data": {
            "get": {
                "tags": ["Data"],
                "summary": "Load the Application Document",
                "description": "Returns the stored document plus a lastLoaded timestamp. User passwords are removed.",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "The application document", "schema": {"type": "object"}},
                    "500": {"description": "Document unreadable or corrupt", "schema": {"$ref": "#/definitions/utils.APIError"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["Data"],
                "summary": "Save the Application Document",
                "description": "Merges the posted collections into the stored document. Non-empty collections replace stored ones; missing or empty ones keep what is on disk. A save that would empty a guarded collection is rejected. Send version for optimistic concurrency.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "document", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {
                    "200": {"description": "Saved", "schema": {"$ref": "#/definitions/db.SaveResult"}},
                    "400": {"description": "Malformed body, invalid record or destructive save", "schema": {"$ref": "#/definitions/utils.APIError"}},
                    "409": {"description": "Stale version", "schema": {"$ref": "#/definitions/utils.APIError"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/utils.APIError"}},
                    "500": {"description": "Write failed", "schema": {"$ref": "#/definitions/utils.APIError"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["Data"],
                "summary": "Reset to Defaults",
                "description": "Backs up the current document and replaces it with the seed data.",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "The reset document", "schema": {"type": "object"}},
                    "500": {"description": "Write failed", "schema": {"$ref": "#/definitions/utils.APIError"}}
                }
            }
        },
        "/api/backup": {
            "get": {
                "tags": ["Backups"],
                "summary": "List Backups",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "Backups, newest first", "schema": {"$ref": "#/definitions/api.ListBackupsResponse"}},
                    "500": {"description": "Data directory unreadable", "schema": {"$ref": "#/definitions/utils.APIError"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["Backups"],
                "summary": "Restore a Backup",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/api.RestoreBackupRequest"}}
                ],
                "responses": {
                    "200": {"description": "Restored", "schema": {"$ref": "#/definitions/db.RestoreResult"}},
                    "400": {"description": "Missing, unsafe or corrupt backup", "schema": {"$ref": "#/definitions/utils.APIError"}},
                    "404": {"description": "No such backup", "schema": {"$ref": "#/definitions/utils.APIError"}},
                    "500": {"description": "Write failed", "schema": {"$ref": "#/definitions/utils.APIError"}}
                }
            }
        },
        "/api/payments/confirm": {
            "post": {
                "tags": ["Payments"],
                "summary": "Confirm Payments",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/api.ConfirmPaymentsRequest"}}
                ],
                "responses": {
                    "200": {"description": "Confirmed", "schema": {"$ref": "#/definitions/db.ConfirmResult"}},
                    "400": {"description": "purchaseIds missing or empty", "schema": {"$ref": "#/definitions/utils.APIError"}}
                }
            }
        },
        "/api/purchases": {
            "post": {
                "tags": ["Payments"],
                "summary": "Create a Purchase",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/api.CreatePurchaseRequest"}}
                ],
                "responses": {
                    "201": {"description": "Pending purchase", "schema": {"type": "object"}},
                    "400": {"description": "Invalid body or unknown module", "schema": {"$ref": "#/definitions/utils.APIError"}},
                    "404": {"description": "Unknown user", "schema": {"$ref": "#/definitions/utils.APIError"}}
                }
            }
        },
        "/api/catalog/{collection}": {
            "get": {
                "tags": ["Catalog"],
                "summary": "Search a Collection",
                "description": "Each q parameter is a condition 'path operator value'. Conditions are ANDed; q=OR between two conditions ORs them.",
                "produces": ["application/json"],
                "parameters": [
                    {"in": "path", "name": "collection", "required": true, "type": "string", "enum": ["modules", "packages", "purchases", "users"]},
                    {"in": "query", "name": "q", "type": "array", "items": {"type": "string"}, "collectionFormat": "multi"},
                    {"in": "query", "name": "sort_by", "type": "string"},
                    {"in": "query", "name": "order", "type": "string", "enum": ["asc", "desc"], "default": "asc"},
                    {"in": "query", "name": "limit", "type": "integer", "default": 20, "maximum": 100, "minimum": 1},
                    {"in": "query", "name": "offset", "type": "integer", "default": 0, "minimum": 0}
                ],
                "responses": {
                    "200": {"description": "One page of records", "schema": {"$ref": "#/definitions/api.CatalogResponse"}},
                    "400": {"description": "Invalid query", "schema": {"$ref": "#/definitions/utils.APIError"}},
                    "404": {"description": "Unknown collection", "schema": {"$ref": "#/definitions/utils.APIError"}}
                }
            }
        },
        "/api/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Log In",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "credentials", "required": true, "schema": {"$ref": "#/definitions/api.LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "Token issued", "schema": {"$ref": "#/definitions/api.LoginResponse"}},
                    "400": {"description": "Missing fields", "schema": {"$ref": "#/definitions/utils.APIError"}},
                    "401": {"description": "Wrong email or password", "schema": {"$ref": "#/definitions/utils.APIError"}},
                    "423": {"description": "Account locked", "schema": {"$ref": "#/definitions/utils.APIError"}}
                }
            }
        },
        "/api/audit": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Admin"],
                "summary": "Audit Trail",
                "produces": ["application/json"],
                "parameters": [
                    {"in": "query", "name": "limit", "type": "integer", "default": 50, "maximum": 500, "minimum": 1},
                    {"in": "query", "name": "action", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Recent entries", "schema": {"type": "object"}},
                    "400": {"description": "Invalid limit", "schema": {"$ref": "#/definitions/utils.APIError"}}
                }
            }
        },
        "/healthz": {
            "get": {
                "tags": ["Admin"],
                "summary": "Health Check",
                "responses": {
                    "200": {"description": "Document readable"},
                    "503": {"description": "Document unreadable"}
                }
            }
        }
    },
    "definitions": {
        "utils.APIError": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean", "example": false},
                "error": {"type": "string"}
            }
        },
        "db.SaveResult": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "moduleCount": {"type": "integer"},
                "version": {"type": "integer"}
            }
        },
        "db.RestoreResult": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "moduleCount": {"type": "integer"},
                "userCount": {"type": "integer"},
                "version": {"type": "integer"}
            }
        },
        "db.ConfirmResult": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "processed": {"type": "integer"}
            }
        },
        "db.BackupInfo": {
            "type": "object",
            "properties": {
                "filename": {"type": "string", "example": "backup-1709287200000.json"},
                "timestamp": {"type": "integer"},
                "date": {"type": "string", "format": "date-time"}
            }
        },
        "api.ListBackupsResponse": {
            "type": "object",
            "properties": {
                "backups": {"type": "array", "items": {"$ref": "#/definitions/db.BackupInfo"}}
            }
        },
        "api.RestoreBackupRequest": {
            "type": "object",
            "required": ["filename"],
            "properties": {
                "filename": {"type": "string", "example": "backup-1709287200000.json"}
            }
        },
        "api.ConfirmPaymentsRequest": {
            "type": "object",
            "properties": {
                "purchaseIds": {"type": "array", "items": {"type": "string"}}
            }
        },
        "api.CreatePurchaseRequest": {
            "type": "object",
            "required": ["userId", "moduleIds"],
            "properties": {
                "userId": {"type": "string"},
                "moduleIds": {"type": "array", "items": {"type": "string"}},
                "amount": {"type": "number"}
            }
        },
        "api.CatalogResponse": {
            "type": "object",
            "properties": {
                "data": {"type": "array", "items": {"type": "object"}},
                "total": {"type": "integer"},
                "limit": {"type": "integer"},
                "offset": {"type": "integer"}
            }
        },
        "api.LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string", "example": "admin@zingalinga.com"},
                "password": {"type": "string", "example": "admin123"}
            }
        },
        "api.LoginResponse": {
            "type": "object",
            "properties": {
                "token": {"type": "string"},
                "user": {"type": "object"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header",
            "description": "Type 'Bearer' followed by a space and JWT token"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Zinga Linga Data API",
	Description:      "Stores the Zinga Linga application document on disk with guarded saves, timestamped backups and a permanent sidecar.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
