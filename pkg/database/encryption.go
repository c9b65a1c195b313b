package database

import (
	"generichttp/pkg/models"

	"github.com/firdasafridi/gocrypt"
)

func newCrypt(secretKey string) (*gocrypt.Option, error) {
	aesOpt, err := gocrypt.NewAESOpt(secretKey)
	if err != nil {
		return nil, err
	}
	return &gocrypt.Option{AESOpt: aesOpt}, nil
}

// EncryptStruct encrypts the fields tagged with gocrypt using the provided secret key.
func EncryptStruct[T any](entity T, secretKey string) (T, error) {
	opt, err := newCrypt(secretKey)
	if err != nil {
		return entity, err
	}
	if err := gocrypt.New(opt).Encrypt(&entity); err != nil {
		return entity, err
	}
	return entity, nil
}

// DecryptStruct decrypts the fields tagged with gocrypt using the provided secret key.
func DecryptStruct[T any](entity T, secretKey string) (T, error) {
	opt, err := newCrypt(secretKey)
	if err != nil {
		return entity, err
	}
	if err := gocrypt.New(opt).Decrypt(&entity); err != nil {
		return entity, err
	}
	return entity, nil
}

// EncryptPassword returns the value to put in encrypted_password for a plain password.
func EncryptPassword(password, secretKey string) (string, error) {
	enc, err := EncryptStruct(models.AuthSpec{EncryptedPassword: password}, secretKey)
	if err != nil {
		return "", err
	}
	return enc.EncryptedPassword, nil
}

// DecryptAuth resolves encrypted_password into the plain password.
// Definitions without an encrypted password are returned unchanged.
func DecryptAuth(auth *models.AuthSpec, secretKey string) (*models.AuthSpec, error) {
	if auth == nil || auth.EncryptedPassword == "" {
		return auth, nil
	}

	decrypted, err := DecryptStruct(*auth, secretKey)
	if err != nil {
		return nil, err
	}
	decrypted.Password = decrypted.EncryptedPassword
	decrypted.EncryptedPassword = ""
	return &decrypted, nil
}
