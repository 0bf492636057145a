package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "ThesisHub API",
        "description": "Thesis and project group management API",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login, token refresh and password management"},
        {"name": "Groups", "description": "Project group lifecycle"},
        {"name": "Grading", "description": "Marks and aggregated results"},
        {"name": "Documents", "description": "Milestone document upload and review"},
        {"name": "Notifications", "description": "Per-user notices"},
        {"name": "Batches", "description": "Cohort configuration"},
        {"name": "Exports", "description": "Grade sheet downloads"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Rotate refresh token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefreshTokenRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/groups": {
            "get": {
                "tags": ["Groups"],
                "summary": "List groups",
                "parameters": [
                    {"name": "batch_id", "in": "query", "type": "string"},
                    {"name": "teacher_id", "in": "query", "type": "string"},
                    {"name": "approved", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Groups"],
                "summary": "Create group",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateGroupRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/groups/join": {
            "post": {
                "tags": ["Groups"],
                "summary": "Join group by invite code",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/JoinGroupRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Group full or membership closed"}
                }
            }
        },
        "/groups/leave": {
            "post": {
                "tags": ["Groups"],
                "summary": "Leave current group",
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/groups/{id}/overview": {
            "get": {
                "tags": ["Groups"],
                "summary": "Group overview with derived status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/groups/{id}/approval": {
            "patch": {
                "tags": ["Groups"],
                "summary": "Approve or disapprove group",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApprovalRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/groups/{id}/roles": {
            "put": {
                "tags": ["Groups"],
                "summary": "Assign grading role",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AssignRoleRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/groups/{id}/marks": {
            "get": {
                "tags": ["Grading"],
                "summary": "List group marks",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Grading"],
                "summary": "Submit mark",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitMarkRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Mark above role cap"}
                }
            }
        },
        "/groups/{id}/results": {
            "get": {
                "tags": ["Grading"],
                "summary": "List aggregated results",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/groups/{id}/documents": {
            "get": {
                "tags": ["Documents"],
                "summary": "List group documents",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Documents"],
                "summary": "Upload milestone document",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "type", "in": "formData", "required": true, "type": "string"},
                    {"name": "file", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/documents/{id}/review": {
            "patch": {
                "tags": ["Documents"],
                "summary": "Accept or reject document",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReviewRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/documents/{id}/download-url": {
            "post": {
                "tags": ["Documents"],
                "summary": "Issue signed download token",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/downloads": {
            "get": {
                "tags": ["Documents"],
                "summary": "Download document by signed token",
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File stream"},
                    "401": {"description": "Invalid or expired token"}
                }
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "List notices",
                "parameters": [
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/batches": {
            "get": {
                "tags": ["Batches"],
                "summary": "List batches",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Batches"],
                "summary": "Create batch",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BatchRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/batches/{id}/grade-sheet": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export grade sheet",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File stream"}
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
        "RefreshTokenRequest": {
            "type": "object",
            "properties": {
                "refresh_token": {"type": "string"}
            },
            "required": ["refresh_token"]
        },
        "CreateGroupRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "department": {"type": "string"},
                "batch_id": {"type": "string"},
                "field_id": {"type": "string"},
                "choice1_id": {"type": "string"},
                "choice2_id": {"type": "string"},
                "choice3_id": {"type": "string"}
            },
            "required": ["title", "department", "batch_id"]
        },
        "JoinGroupRequest": {
            "type": "object",
            "properties": {
                "invite_code": {"type": "string"}
            },
            "required": ["invite_code"]
        },
        "ApprovalRequest": {
            "type": "object",
            "properties": {
                "approve": {"type": "boolean"}
            },
            "required": ["approve"]
        },
        "AssignRoleRequest": {
            "type": "object",
            "properties": {
                "role": {"type": "string", "enum": ["SUPERVISOR", "INTERNAL", "EXTERNAL"]},
                "teacher_id": {"type": "string"}
            },
            "required": ["role", "teacher_id"]
        },
        "SubmitMarkRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "value": {"type": "integer"},
                "comment": {"type": "string"}
            },
            "required": ["student_id", "value"]
        },
        "ReviewRequest": {
            "type": "object",
            "properties": {
                "accept": {"type": "boolean"}
            },
            "required": ["accept"]
        },
        "BatchRequest": {
            "type": "object",
            "properties": {
                "number": {"type": "integer"},
                "max_groups": {"type": "integer"},
                "min_groups": {"type": "integer"},
                "max_students_per_group": {"type": "integer"},
                "supervisor_pct": {"type": "integer"},
                "internal_pct": {"type": "integer"},
                "external_pct": {"type": "integer"},
                "supervisor_cap": {"type": "integer"},
                "internal_cap": {"type": "integer"},
                "external_cap": {"type": "integer"}
            },
            "required": ["number", "max_groups", "max_students_per_group"]
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
