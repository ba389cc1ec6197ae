// Command devtoken mints an access token for local runs.  Real sessions
// come from the school's identity provider, which signs with the same
// JWT_SECRET.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
	"github.com/Lierre03/bcp-ems-sub000/internal/utils"
	"github.com/Lierre03/bcp-ems-sub000/internal/validator"
)

type tokenRequest struct {
	Sub  uint64 `json:"sub" validate:"gt=0"`
	Role string `json:"role" validate:"required,role"`
	TTL  int    `json:"ttl" validate:"gt=0,lte=1440"`
}

func mint(secret string, req tokenRequest) (string, error) {
	if err := validator.Validate(context.Background(), req); err != nil {
		return "", err
	}
	tok, err := utils.NewAccessToken(secret, req.Sub, model.Role(req.Role), req.TTL)
	if err != nil {
		return "", err
	}
	return tok.Token, nil
}

func main() {
	sub := flag.Uint64P("sub", "s", 1, "user id placed in the sub claim")
	role := flag.StringP("role", "r", string(model.RoleRequestor), "REQUESTOR, ADMIN, STAFF or SUPER_ADMIN")
	ttl := flag.IntP("ttl", "t", 60, "lifetime in minutes")
	flag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(1)
	}
	tok, err := mint(secret, tokenRequest{Sub: *sub, Role: *role, TTL: *ttl})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	fmt.Println(tok)
}
