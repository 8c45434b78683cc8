package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Reposition API",
        "description": "Class attendance lifecycle and reposition credit ledger",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "in": "header", "name": "Authorization"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Classes", "description": "Seat booking and displacement"},
        {"name": "Attendees", "description": "Attendance lifecycle"},
        {"name": "Credits", "description": "Reposition credit ledger"}
    ],
    "parameters": {
        "Organization": {"name": "X-Organization-ID", "in": "header", "type": "string", "required": true},
        "ID": {"name": "id", "in": "path", "type": "string", "required": true}
    },
    "paths": {
        "/classes/{id}/enrollments": {
            "post": {
                "tags": ["Classes"],
                "summary": "Request a seat in a class event",
                "description": "A full class answers 409 CLASS_FULL with the current occupants in data.",
                "parameters": [
                    {"$ref": "#/parameters/ID"},
                    {"$ref": "#/parameters/Organization"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EnrollmentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Enrolled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Class full, already enrolled or insufficient credits", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes/{id}/attendees": {
            "get": {
                "tags": ["Classes"],
                "summary": "List the attendees of a class event",
                "parameters": [
                    {"$ref": "#/parameters/ID"},
                    {"$ref": "#/parameters/Organization"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes/{id}/displacements": {
            "post": {
                "tags": ["Classes"],
                "summary": "Replace an attendee of a full class with another student",
                "parameters": [
                    {"$ref": "#/parameters/ID"},
                    {"$ref": "#/parameters/Organization"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DisplacementRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Stale target or class full", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendees/{id}/status": {
            "patch": {
                "tags": ["Attendees"],
                "summary": "Change the attendance status of an attendee",
                "parameters": [
                    {"$ref": "#/parameters/ID"},
                    {"$ref": "#/parameters/Organization"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateAttendanceRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendees/{id}": {
            "delete": {
                "tags": ["Attendees"],
                "summary": "Remove an attendee, refunding a spent credit",
                "parameters": [
                    {"$ref": "#/parameters/ID"},
                    {"$ref": "#/parameters/Organization"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/credits": {
            "get": {
                "tags": ["Credits"],
                "summary": "Current reposition credit balance",
                "parameters": [
                    {"$ref": "#/parameters/ID"},
                    {"$ref": "#/parameters/Organization"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Credits"],
                "summary": "Grant or revoke credits (owner or admin)",
                "parameters": [
                    {"$ref": "#/parameters/ID"},
                    {"$ref": "#/parameters/Organization"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreditAdjustmentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Insufficient credits", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/credits/transactions": {
            "get": {
                "tags": ["Credits"],
                "summary": "Ledger entries of a student, newest first",
                "parameters": [
                    {"$ref": "#/parameters/ID"},
                    {"$ref": "#/parameters/Organization"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/credits/statement": {
            "get": {
                "tags": ["Credits"],
                "summary": "Download the student's full credit ledger",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"$ref": "#/parameters/ID"},
                    {"$ref": "#/parameters/Organization"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "Statement file", "schema": {"type": "file"}}
                }
            }
        },
        "/students/{id}/credits/reconcile": {
            "post": {
                "tags": ["Credits"],
                "summary": "Queue a check of the cached balance against the ledger (owner or admin)",
                "parameters": [
                    {"$ref": "#/parameters/ID"},
                    {"$ref": "#/parameters/Organization"}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "EnrollmentRequest": {
            "type": "object",
            "required": ["student_id"],
            "properties": {
                "student_id": {"type": "string", "format": "uuid"},
                "use_credit": {"type": "boolean"}
            }
        },
        "DisplacementRequest": {
            "type": "object",
            "required": ["incumbent_attendee_id", "student_id"],
            "properties": {
                "incumbent_attendee_id": {"type": "string", "format": "uuid"},
                "student_id": {"type": "string", "format": "uuid"},
                "use_credit": {"type": "boolean"}
            }
        },
        "UpdateAttendanceRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string", "enum": ["SCHEDULED", "PRESENT", "ABSENT"]}
            }
        },
        "CreditAdjustmentRequest": {
            "type": "object",
            "required": ["amount", "reason"],
            "properties": {
                "amount": {"type": "integer"},
                "reason": {"type": "string", "maxLength": 500}
            }
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
                "pagination": {"$ref": "#/definitions/Pagination"}
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
