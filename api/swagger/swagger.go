package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Registrar API",
        "description": "Student registration, enrollment and document request workflows",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login, token refresh, sessions"},
        {"name": "Students", "description": "Student records and photos"},
        {"name": "Registrations", "description": "Five-step registration drafts"},
        {"name": "Enrollments", "description": "Enrollment drafts and subject selection"},
        {"name": "Requests", "description": "Document requests and approvals"},
        {"name": "Notifications", "description": "Student notifications"},
        {"name": "Dashboard", "description": "Registrar summary"},
        {"name": "Settings", "description": "Institution settings"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/api/v1/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/requests": {
            "get": {
                "tags": ["Requests"],
                "summary": "List document requests",
                "parameters": [
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Requests"],
                "summary": "Create document request",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateRequestPayload"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/requests/{id}/forward": {
            "post": {
                "tags": ["Requests"],
                "summary": "Forward request for payment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ForwardRequestPayload"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/requests/{id}/finalize": {
            "post": {
                "tags": ["Requests"],
                "summary": "Finalize approved request and render document",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/enrollments/drafts": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Open enrollment draft",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/OpenDraftPayload"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/enrollments/drafts/{id}/subjects": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Add subject to draft (idempotent by code)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AddSubjectPayload"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "CreateRequestPayload": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "document_type": {"type": "string"},
                "purpose": {"type": "string"}
            },
            "required": ["student_id", "document_type"]
        },
        "ForwardRequestPayload": {
            "type": "object",
            "properties": {
                "document_type": {"type": "string"},
                "amount": {"type": "string"}
            },
            "required": ["document_type", "amount"]
        },
        "OpenDraftPayload": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "school_year": {"type": "string"},
                "semester": {"type": "string"}
            },
            "required": ["student_id", "school_year", "semester"]
        },
        "AddSubjectPayload": {
            "type": "object",
            "properties": {
                "subject_code": {"type": "string"}
            },
            "required": ["subject_code"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
