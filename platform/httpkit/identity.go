package httpkit

import (
	"slices"

	"github.com/gin-gonic/gin"
)

// Identity is the operator behind an admin request, as established by
// AuthRequired. The zero value is anonymous.
type Identity struct {
	subject string
	roles   []string
}

// Subject is the token subject; lead events record it as the actor.
func (i Identity) Subject() string          { return i.subject }
func (i Identity) Roles() []string          { return i.roles }
func (i Identity) IsAuthenticated() bool    { return i.subject != "" }
func (i Identity) HasRole(role string) bool { return slices.Contains(i.roles, role) }

// GetIdentity reads the identity AuthRequired stored on c.
func GetIdentity(c *gin.Context) Identity {
	subject := c.GetString(ContextSubjectKey)
	if subject == "" {
		return Identity{}
	}
	roles, _ := c.Value(ContextRolesKey).([]string)
	return Identity{subject: subject, roles: roles}
}
