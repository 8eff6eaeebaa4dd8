package ledger

type appointCountryRequest struct {
	Principal string `json:"principal" validate:"required,max=128"`
}

type appointStateRequest struct {
	Principal string    `json:"principal" validate:"required,max=128"`
	CountryID CountryID `json:"country_id"`
}

type appointCityRequest struct {
	Principal string  `json:"principal" validate:"required,max=128"`
	StateID   StateID `json:"state_id"`
}

type registerProducerRequest struct {
	Principal string `json:"principal" validate:"required,max=128"`
	CityID    CityID `json:"city_id"`
}

type assignRoleRequest struct {
	Principal string    `json:"principal" validate:"required,max=128"`
	Role      string    `json:"role" validate:"required"`
	CountryID CountryID `json:"country_id"`
	StateID   StateID   `json:"state_id"`
	CityID    CityID    `json:"city_id"`
}

type certifyRequest struct {
	ClaimHash string `json:"claim_hash" validate:"required"`
	CityID    CityID `json:"city_id"`
}

// Amount is left to the ledger so zero reports AmountOutOfRange rather than
// a validation failure.
type issueRequest struct {
	To        string `json:"to" validate:"required,max=128"`
	Amount    uint32 `json:"amount"`
	ClaimHash string `json:"claim_hash" validate:"required"`
}

type transferRequest struct {
	From string `json:"from" validate:"omitempty,max=128"`
	To   string `json:"to" validate:"required,max=128"`
}

type principalResponse struct {
	Principal    Principal     `json:"principal"`
	Role         Role          `json:"role"`
	Jurisdiction *Jurisdiction `json:"jurisdiction,omitempty"`
}

type unitsResponse struct {
	Units []CreditUnit `json:"units"`
	Count int          `json:"count"`
}
