package receipt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalid = errors.New("invalid receipt")

// Issuer signs and verifies submission receipts. A receipt lets a
// respondent prove later that a given submission was acknowledged.
type Issuer struct {
	hmac   []byte
	issuer string
	now    func() time.Time
}

func NewIssuer(secret, issuer string) *Issuer {
	return &Issuer{hmac: []byte(secret), issuer: issuer, now: time.Now}
}

type Claims struct {
	SurveyID    string `json:"survey"`
	Fingerprint string `json:"fp"`
	jwt.RegisteredClaims
}

// Issue returns an HS256 token whose subject is the submission id.
func (i *Issuer) Issue(submissionID, surveyID, fingerprint string) (string, error) {
	claims := &Claims{
		SurveyID:    surveyID,
		Fingerprint: fingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  submissionID,
			Issuer:   i.issuer,
			IssuedAt: jwt.NewNumericDate(i.now()),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(i.hmac)
}

func (i *Issuer) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return i.hmac, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	c, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	return c, nil
}
