// Package docs registers the Swagger 2.0 description of the HTTP API with swag
// so gin-swagger can serve it under /docs.
package docs

import (
	_ "embed"

	"github.com/swaggo/swag"
)

//go:embed swagger.json
var document string

type swaggerDoc struct{}

func (swaggerDoc) ReadDoc() string { return document }

func init() {
	swag.Register(swag.Name, swaggerDoc{})
}
