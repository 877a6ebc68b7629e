package masking

import (
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"maskflow/internal/domain"
	"maskflow/internal/jsonutil"
)

// generator draws one synthetic value from a seeded faker. A generator must
// only use f so the same seed always yields the same output.
type generator func(f *gofakeit.Faker) string

var (
	dobStart = time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC)
	dobEnd   = time.Date(2006, 12, 31, 0, 0, 0, 0, time.UTC)

	issueStart = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	issueEnd   = time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	cityPrefixes = []string{"North", "East", "West", "South", "New", "Lake", "Port"}
	citySuffixes = []string{
		"town", "ton", "land", "ville", "berg", "burgh", "borough", "bury", "view",
		"port", "mouth", "stad", "furt", "chester", "fort", "haven", "side", "shire",
	}
	secondaryUnits = []string{"Apt.", "Suite"}
	passportSexes  = []string{"M", "F", "X"}
	bloodGroups    = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

	passportEncoder      = jsonutil.NewObjectEncoder([]string{"given_name", "surname", "sex", "date_of_birth", "number", "issued", "expires"})
	profileEncoder       = jsonutil.NewObjectEncoder([]string{"job", "company", "ssn", "residence", "blood_group", "username", "name", "sex", "address", "mail", "birthdate"})
	simpleProfileEncoder = jsonutil.NewObjectEncoder([]string{"username", "name", "sex", "address", "mail", "birthdate"})
)

var generators = map[domain.PIICategory]generator{
	domain.CatAddress:            func(f *gofakeit.Faker) string { return f.Address().Address },
	domain.CatCity:               func(f *gofakeit.Faker) string { return f.City() },
	domain.CatCityPrefix:         func(f *gofakeit.Faker) string { return f.RandomString(cityPrefixes) },
	domain.CatCitySuffix:         func(f *gofakeit.Faker) string { return f.RandomString(citySuffixes) },
	domain.CatCompany:            func(f *gofakeit.Faker) string { return f.Company() },
	domain.CatCompanyEmail:       func(f *gofakeit.Faker) string { return strings.ToLower(f.Username()) + "@" + f.DomainName() },
	domain.CatCompanySuffix:      func(f *gofakeit.Faker) string { return f.CompanySuffix() },
	domain.CatCountry:            func(f *gofakeit.Faker) string { return f.Country() },
	domain.CatCountryCallingCode: func(f *gofakeit.Faker) string { return "+" + strconv.Itoa(f.Number(1, 998)) },
	domain.CatCountryCode:        func(f *gofakeit.Faker) string { return f.CountryAbr() },
	domain.CatDateOfBirth:        birthDate,
	domain.CatEmail:              func(f *gofakeit.Faker) string { return f.Email() },
	domain.CatFirstName:          func(f *gofakeit.Faker) string { return f.FirstName() },
	domain.CatJob:                func(f *gofakeit.Faker) string { return f.JobTitle() },
	domain.CatLastName:           func(f *gofakeit.Faker) string { return f.LastName() },
	domain.CatName:               func(f *gofakeit.Faker) string { return f.FirstName() + " " + f.LastName() },
	domain.CatPassportDOB:        birthDate,
	domain.CatPassportFull:       passportFull,
	domain.CatPassportGender:     func(f *gofakeit.Faker) string { return f.RandomString(passportSexes) },
	domain.CatPassportNumber:     passportNumber,
	domain.CatPassportOwner:      func(f *gofakeit.Faker) string { return f.LastName() + ", " + f.FirstName() },
	domain.CatPhoneNumber:        func(f *gofakeit.Faker) string { return f.PhoneFormatted() },
	domain.CatPostalCode:         func(f *gofakeit.Faker) string { return f.Zip() },
	domain.CatPostcode:           func(f *gofakeit.Faker) string { return f.Zip() },
	domain.CatProfile:            profile,
	domain.CatSecondaryAddress:   func(f *gofakeit.Faker) string { return f.RandomString(secondaryUnits) + " " + f.Numerify("###") },
	domain.CatSimpleProfile:      simpleProfile,
	domain.CatSSN:                ssn,
	domain.CatState:              func(f *gofakeit.Faker) string { return f.State() },
	domain.CatStateAbbr:          func(f *gofakeit.Faker) string { return f.StateAbr() },
	domain.CatStreetAddress:      func(f *gofakeit.Faker) string { return f.Street() },
	domain.CatStreetName:         func(f *gofakeit.Faker) string { return f.StreetName() + " " + f.StreetSuffix() },
	domain.CatStreetSuffix:       func(f *gofakeit.Faker) string { return f.StreetSuffix() },
	domain.CatZipcode:            func(f *gofakeit.Faker) string { return f.Zip() },
	domain.CatZipcodeInState:     func(f *gofakeit.Faker) string { return f.Zip() },
	domain.CatZipcodePlus4:       func(f *gofakeit.Faker) string { return f.Zip() + "-" + f.Numerify("####") },
}

func birthDate(f *gofakeit.Faker) string {
	return f.DateRange(dobStart, dobEnd).Format("2006-01-02")
}

func ssn(f *gofakeit.Faker) string {
	s := f.SSN()
	if len(s) != 9 {
		return s
	}
	return s[:3] + "-" + s[3:5] + "-" + s[5:]
}

func passportNumber(f *gofakeit.Faker) string {
	return strings.ToUpper(f.Lexify("?")) + f.Numerify("########")
}

func passportFull(f *gofakeit.Faker) string {
	issued := f.DateRange(issueStart, issueEnd)
	return passportEncoder.Encode(
		f.FirstName(),
		f.LastName(),
		f.RandomString(passportSexes),
		birthDate(f),
		passportNumber(f),
		issued.Format("2006-01-02"),
		issued.AddDate(10, 0, 0).Format("2006-01-02"),
	)
}

func sexOf(f *gofakeit.Faker) string {
	if f.Gender() == "female" {
		return "F"
	}
	return "M"
}

func profile(f *gofakeit.Faker) string {
	return profileEncoder.Encode(
		f.JobTitle(),
		f.Company(),
		ssn(f),
		f.Address().Address,
		f.RandomString(bloodGroups),
		strings.ToLower(f.Username()),
		f.FirstName()+" "+f.LastName(),
		sexOf(f),
		f.Address().Address,
		f.Email(),
		birthDate(f),
	)
}

func simpleProfile(f *gofakeit.Faker) string {
	return simpleProfileEncoder.Encode(
		strings.ToLower(f.Username()),
		f.FirstName()+" "+f.LastName(),
		sexOf(f),
		f.Address().Address,
		f.Email(),
		birthDate(f),
	)
}
