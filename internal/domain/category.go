package domain

import (
	"errors"
	"sort"
)

// ErrUnknownCategory is returned when a PII category is not in the closed set.
var ErrUnknownCategory = errors.New("unknown PII category")

// PIICategory names the kind of synthetic value a masked column receives.
type PIICategory string

const (
	CatAddress            PIICategory = "address"
	CatCity               PIICategory = "city"
	CatCityPrefix         PIICategory = "city_prefix"
	CatCitySuffix         PIICategory = "city_suffix"
	CatCompany            PIICategory = "company"
	CatCompanyEmail       PIICategory = "company_email"
	CatCompanySuffix      PIICategory = "company_suffix"
	CatCountry            PIICategory = "country"
	CatCountryCallingCode PIICategory = "country_calling_code"
	CatCountryCode        PIICategory = "country_code"
	CatDateOfBirth        PIICategory = "date_of_birth"
	CatEmail              PIICategory = "email"
	CatFirstName          PIICategory = "first_name"
	CatJob                PIICategory = "job"
	CatLastName           PIICategory = "last_name"
	CatName               PIICategory = "name"
	CatPassportDOB        PIICategory = "passport_dob"
	CatPassportFull       PIICategory = "passport_full"
	CatPassportGender     PIICategory = "passport_gender"
	CatPassportNumber     PIICategory = "passport_number"
	CatPassportOwner      PIICategory = "passport_owner"
	CatPhoneNumber        PIICategory = "phone_number"
	CatPostalCode         PIICategory = "postalcode"
	CatPostcode           PIICategory = "postcode"
	CatProfile            PIICategory = "profile"
	CatSecondaryAddress   PIICategory = "secondary_address"
	CatSimpleProfile      PIICategory = "simple_profile"
	CatSSN                PIICategory = "ssn"
	CatState              PIICategory = "state"
	CatStateAbbr          PIICategory = "state_abbr"
	CatStreetAddress      PIICategory = "street_address"
	CatStreetName         PIICategory = "street_name"
	CatStreetSuffix       PIICategory = "street_suffix"
	CatZipcode            PIICategory = "zipcode"
	CatZipcodeInState     PIICategory = "zipcode_in_state"
	CatZipcodePlus4       PIICategory = "zipcode_plus4"
)

var categories = map[PIICategory]struct{}{
	CatAddress: {}, CatCity: {}, CatCityPrefix: {}, CatCitySuffix: {},
	CatCompany: {}, CatCompanyEmail: {}, CatCompanySuffix: {},
	CatCountry: {}, CatCountryCallingCode: {}, CatCountryCode: {},
	CatDateOfBirth: {}, CatEmail: {}, CatFirstName: {}, CatJob: {},
	CatLastName: {}, CatName: {},
	CatPassportDOB: {}, CatPassportFull: {}, CatPassportGender: {},
	CatPassportNumber: {}, CatPassportOwner: {},
	CatPhoneNumber: {}, CatPostalCode: {}, CatPostcode: {},
	CatProfile: {}, CatSecondaryAddress: {}, CatSimpleProfile: {},
	CatSSN: {}, CatState: {}, CatStateAbbr: {},
	CatStreetAddress: {}, CatStreetName: {}, CatStreetSuffix: {},
	CatZipcode: {}, CatZipcodeInState: {}, CatZipcodePlus4: {},
}

// Known reports whether c is a member of the closed category set.
func (c PIICategory) Known() bool {
	_, ok := categories[c]
	return ok
}

// ListCategories returns every supported category, sorted.
func ListCategories() []PIICategory {
	out := make([]PIICategory, 0, len(categories))
	for c := range categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
