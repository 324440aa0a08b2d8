// internal/service/template_service.go
package service

import (
	"regexp"
	"strings"

	"github.com/unclebandit/campaign-dispatch/internal/model"
)

// placeholderRe matches {{name}} and {{ name }} alike.
var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z_]+)\s*\}\}`)

// RenderTemplate substitutes recipient fields into the template. The field
// set is closed (name, email, tags); unrecognized placeholders are left
// verbatim so old templates keep working against newer engines. Rendering is
// pure: preview and send produce identical output for the same inputs.
func RenderTemplate(template string, user *model.User) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		field := strings.TrimSpace(strings.Trim(match, "{}"))
		switch field {
		case "name":
			return user.Name
		case "email":
			return user.Email
		case "tags":
			return strings.Join(user.Tags, ",")
		default:
			return match
		}
	})
}
