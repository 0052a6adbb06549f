package registry

// Site is a canonical collection site from the static registry.
type Site struct {
	Code            string `json:"code" validate:"required"`
	Name            string `json:"name" validate:"required"`
	Region          string `json:"region" validate:"required"`
	AnnualObjective int    `json:"annualObjective" validate:"gte=0"`
	Manager         string `json:"manager"`
	Email           string `json:"email" validate:"omitempty,email"`
	Phone           string `json:"phone"`
}
