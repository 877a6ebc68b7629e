package workflow

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"maskflow/internal/copier"
	"maskflow/internal/db"
	"maskflow/internal/secrets"
)

func adapterErr(k db.Kind) error {
	return &db.Error{Kind: k, Op: "test", Detail: "boom"}
}

func TestClassifyCopy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"clear missing table", &copier.StepError{Step: copier.StepClear, Err: adapterErr(db.KindObjectNotFound)}, ClassSchema},
		{"clear constraint", &copier.StepError{Step: copier.StepClear, Err: adapterErr(db.KindOther)}, ClassInsert},
		{"insert constraint", &copier.StepError{Step: copier.StepInsert, Err: adapterErr(db.KindOther)}, ClassInsert},
		{"insert timeout", &copier.StepError{Step: copier.StepInsert, Err: adapterErr(db.KindTimeout)}, ClassConnectivity},
		{"fetch other", &copier.StepError{Step: copier.StepFetch, Err: adapterErr(db.KindOther)}, ClassSchema},
		{"fetch network", &copier.StepError{Step: copier.StepFetch, Err: adapterErr(db.KindNetworkUnreachable)}, ClassConnectivity},
		{"metadata auth", &copier.StepError{Step: copier.StepMetadata, Err: adapterErr(db.KindAuthenticationFailed)}, ClassCredential},
		{"missing column", &copier.StepError{Step: copier.StepMetadata, Err: fmt.Errorf("%w: t.c", copier.ErrColumnNotFound)}, ClassSchema},
		{"no insertable columns", &copier.StepError{Step: copier.StepMetadata, Err: copier.ErrNoInsertableColumns}, ClassSchema},
		{"no columns", &copier.StepError{Step: copier.StepPlan, Err: copier.ErrNoColumns}, ClassSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyCopy("people", tt.err)
			assert.Equal(t, tt.want, got.Class)
			assert.Equal(t, tt.want, ClassOf(got))
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassifyConnect(t *testing.T) {
	assert.Equal(t, ClassCredential, classifyConnect("source", adapterErr(db.KindAuthenticationFailed)).Class)
	assert.Equal(t, ClassConnectivity, classifyConnect("source", adapterErr(db.KindUnavailable)).Class)
	assert.Equal(t, ClassConnectivity, classifyConnect("source", adapterErr(db.KindOther)).Class)
	assert.Equal(t, ClassSchema, classifyConnect("source", adapterErr(db.KindObjectNotFound)).Class)
}

func TestClassifySecret(t *testing.T) {
	e := classifySecret("source", secrets.ErrNotFound)
	assert.Equal(t, ClassCredential, e.Class)
	assert.Contains(t, e.Error(), "no stored password")

	e = classifySecret("destination", secrets.ErrInvalidKey)
	assert.Equal(t, "CredentialError: destination connection password cannot be decrypted: "+secrets.ErrInvalidKey.Error(), e.Error())
}

func TestErrorFormat(t *testing.T) {
	assert.Equal(t, "ConfigurationError: workflow w", newError(ClassConfiguration, "workflow w", nil).Error())
	assert.Equal(t, Class(""), ClassOf(errors.New("plain")))
	assert.Equal(t, ClassInsert, ClassOf(fmt.Errorf("wrapped: %w", newError(ClassInsert, "x", nil))))
}
