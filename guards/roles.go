package guards

import (
	"fmt"
	"slices"
	"strings"

	"github.com/imdat99/bun-di-sub000"
)

// RolesKey is the metadata key set by Roles.
const RolesKey = "roles"

// Roles restricts a controller or route to users holding one of roles.
func Roles(roles ...string) bundi.EnhancerOption {
	return bundi.SetMetadata(RolesKey, roles)
}

// RolesGuard admits requests whose user holds a role required by Roles
// metadata on the handler, or failing that on the controller. Routes without
// Roles metadata are open. It expects JWTGuard to run first.
type RolesGuard struct {
	reflector *bundi.Reflector
}

// NewRolesGuard is the RolesGuard constructor. Pass it to UseGuards.
func NewRolesGuard(reflector *bundi.Reflector) *RolesGuard {
	return &RolesGuard{reflector: reflector}
}

// CanActivate implements bundi.Guard.
func (g *RolesGuard) CanActivate(ctx *bundi.ExecutionContext) (bool, error) {
	required, _ := g.reflector.GetAllAndOverride(RolesKey, ctx.Handler(), ctx.Class()).([]string)
	if len(required) == 0 {
		return true, nil
	}

	claims, ok := UserFrom(ctx.HTTP())
	if !ok {
		return false, nil
	}
	held := userRoles(claims)
	for _, role := range required {
		if slices.Contains(held, role) {
			return true, nil
		}
	}
	return false, nil
}

func userRoles(claims map[string]any) []string {
	var roles []string
	switch v := claims["roles"].(type) {
	case []any:
		for _, r := range v {
			roles = append(roles, fmt.Sprint(r))
		}
	case []string:
		roles = append(roles, v...)
	case string:
		roles = append(roles, strings.Fields(v)...)
	}
	if role, ok := claims["role"].(string); ok && role != "" {
		roles = append(roles, role)
	}
	return roles
}
