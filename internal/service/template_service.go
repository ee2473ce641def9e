// internal/service/template_service.go
package service

// Personalize prepends the greeting for name to template.
func Personalize(name, template string) string {
    return "Hi " + name + ", " + template
}
