package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the auth service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(r *gin.Engine) {
	r.GET("/swagger/index.html", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(swaggerHTML))
	})
	r.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>auth-service - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "auth-service", "version": "v1" },
  "servers": [{ "url": "/api/v1" }],
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer", "bearerFormat": "JWT" } },
    "schemas": {
      "Tokens": { "type": "object", "properties": { "access_token": {"type":"string"}, "refresh_token": {"type":"string"}, "token_type": {"type":"string"} } },
      "User": { "type": "object", "properties": { "id": {"type":"string"}, "email": {"type":"string"}, "username": {"type":"string"}, "name": {"type":"string"}, "profile_image": {"type":"string"}, "oauth_provider": {"type":"string"}, "is_active": {"type":"boolean"} } }
    }
  },
  "paths": {
    "/auth/login": {
      "post": {
        "summary": "Password login",
        "requestBody": { "content": {
          "application/x-www-form-urlencoded": { "schema": {"type":"object","required":["username","password"],"properties":{"username":{"type":"string"},"password":{"type":"string"}}} },
          "application/json": { "schema": {"type":"object","required":["username","password"],"properties":{"username":{"type":"string"},"password":{"type":"string"}}} }
        }},
        "responses": { "200": { "description": "token pair", "content": { "application/json": { "schema": { "$ref": "#/components/schemas/Tokens" } } } }, "401": { "description": "invalid credentials" } }
      }
    },
    "/auth/refresh": {
      "post": { "summary": "Rotate refresh token", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refresh_token":{"type":"string"}}}}}}, "responses": { "200": { "description": "new token pair" }, "401": { "description": "invalid or superseded refresh token" } } }
    },
    "/auth/logout": {
      "post": { "summary": "Logout and revoke the access token", "security": [{"bearer": []}], "responses": { "200": { "description": "logged out" }, "401": { "description": "not authenticated" } } }
    },
    "/oauth/{provider}": {
      "get": { "summary": "Redirect to provider consent page", "parameters": [{"name":"provider","in":"path","required":true,"schema":{"type":"string","enum":["kakao","google"]}}], "responses": { "302": { "description": "redirect" }, "404": { "description": "unknown provider" } } }
    },
    "/oauth/{provider}/callback": {
      "get": { "summary": "Provider callback; sets session cookies and redirects to the frontend", "parameters": [{"name":"provider","in":"path","required":true,"schema":{"type":"string"}},{"name":"code","in":"query","schema":{"type":"string"}},{"name":"state","in":"query","schema":{"type":"string"}}], "responses": { "302": { "description": "redirect to frontend" } } }
    },
    "/oauth/logout": {
      "post": { "summary": "Clear session cookies", "responses": { "200": { "description": "cookies cleared" } } }
    },
    "/users/": {
      "post": { "summary": "Register a password user", "responses": { "201": { "description": "created", "content": { "application/json": { "schema": { "$ref": "#/components/schemas/User" } } } }, "400": { "description": "email or username taken" } } }
    },
    "/users/me": {
      "get": { "summary": "Current user", "security": [{"bearer": []}], "responses": { "200": { "description": "user" } } },
      "put": { "summary": "Update current user", "security": [{"bearer": []}], "responses": { "200": { "description": "user" } } }
    },
    "/users/me/avatar": {
      "post": { "summary": "Upload profile image", "security": [{"bearer": []}], "requestBody": { "content": { "multipart/form-data": { "schema": {"type":"object","properties":{"file":{"type":"string","format":"binary"}}}}}}, "responses": { "200": { "description": "user" }, "503": { "description": "storage not configured" } } }
    }
  }
}`
