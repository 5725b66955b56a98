package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

var ErrorDuplicateUsername = errors.New("duplicate username")

var ErrorDuplicateEmail = errors.New("duplicate email")
