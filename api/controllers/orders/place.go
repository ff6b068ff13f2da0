package orders

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/medidrop-backend/api/controllers/requestctx"
	"github.com/angelmondragon/medidrop-backend/api/responses"
	"github.com/angelmondragon/medidrop-backend/api/validators"
	internalorders "github.com/angelmondragon/medidrop-backend/internal/orders"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/geo"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
)

const (
	multipartMemory    = 8 << 20
	multipartOverhead  = 1 << 20
	prescriptionField  = "prescription"
	defaultUploadLimit = 10 << 20
)

type placeOrderRequest struct {
	PharmacyID      string          `json:"pharmacyId" validate:"required,uuid"`
	Medicines       json.RawMessage `json:"medicines" validate:"required"`
	DeliveryType    string          `json:"deliveryType" validate:"required,oneof=delivery pickup"`
	DeliveryAddress string          `json:"deliveryAddress" validate:"max=500"`
	Latitude        *float64        `json:"latitude" validate:"omitempty,latitude"`
	Longitude       *float64        `json:"longitude" validate:"omitempty,longitude"`
	ContactNumber   string          `json:"contactNumber" validate:"required,phone"`
}

// Place creates an order from a JSON body or a multipart form carrying a
// prescription file. maxUpload bounds the prescription size in bytes.
func Place(svc internalorders.Service, maxUpload int64, logg *logger.Logger) http.HandlerFunc {
	if maxUpload <= 0 {
		maxUpload = defaultUploadLimit
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if unavailable(svc, w, r, logg) {
			return
		}
		customerID, err := requestctx.UserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var (
			body placeOrderRequest
			file *internalorders.PrescriptionFile
		)
		if isMultipart(r) {
			r.Body = http.MaxBytesReader(w, r.Body, maxUpload+multipartOverhead)
			body, file, err = decodeMultipart(r)
		} else {
			err = validators.DecodeJSONBody(r, &body)
		}
		if r.MultipartForm != nil {
			defer func() { _ = r.MultipartForm.RemoveAll() }()
		}
		if file != nil {
			if closer, ok := file.Body.(io.Closer); ok {
				defer closer.Close()
			}
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := body.toInput(customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.Prescription = file

		result, err := svc.PlaceOrder(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func (b placeOrderRequest) toInput(customerID uuid.UUID) (internalorders.PlaceOrderInput, error) {
	pharmacyID, err := uuid.Parse(strings.TrimSpace(b.PharmacyID))
	if err != nil {
		return internalorders.PlaceOrderInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid pharmacy id")
	}
	lines, err := internalorders.ParseCartLines(b.Medicines)
	if err != nil {
		return internalorders.PlaceOrderInput{}, err
	}
	input := internalorders.PlaceOrderInput{
		CustomerID:      customerID,
		PharmacyID:      pharmacyID,
		Medicines:       lines,
		DeliveryType:    enums.DeliveryType(b.DeliveryType),
		DeliveryAddress: validators.SanitizeString(b.DeliveryAddress, 500),
		ContactNumber:   strings.TrimSpace(b.ContactNumber),
	}
	if b.Latitude != nil && b.Longitude != nil {
		input.Destination = &geo.Coordinate{Latitude: *b.Latitude, Longitude: *b.Longitude}
	}
	return input, nil
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

func decodeMultipart(r *http.Request) (placeOrderRequest, *internalorders.PrescriptionFile, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return placeOrderRequest{}, nil, pkgerrors.New(pkgerrors.CodeValidation, "prescription file too large").WithDetails(map[string]any{"field": prescriptionField})
		}
		return placeOrderRequest{}, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body")
	}

	body := placeOrderRequest{
		PharmacyID:      r.FormValue("pharmacyId"),
		DeliveryType:    r.FormValue("deliveryType"),
		DeliveryAddress: r.FormValue("deliveryAddress"),
		ContactNumber:   r.FormValue("contactNumber"),
	}
	if raw := strings.TrimSpace(r.FormValue("medicines")); raw != "" {
		body.Medicines = json.RawMessage(raw)
	}
	for field, dest := range map[string]**float64{"latitude": &body.Latitude, "longitude": &body.Longitude} {
		raw := strings.TrimSpace(r.FormValue(field))
		if raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return placeOrderRequest{}, nil, pkgerrors.New(pkgerrors.CodeValidation, field+" must be numeric").WithDetails(map[string]any{"field": field})
		}
		*dest = &value
	}
	if err := validators.Struct(&body); err != nil {
		return placeOrderRequest{}, nil, err
	}

	file, header, err := r.FormFile(prescriptionField)
	if errors.Is(err, http.ErrMissingFile) {
		return body, nil, nil
	}
	if err != nil {
		return placeOrderRequest{}, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read prescription file")
	}
	return body, &internalorders.PrescriptionFile{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}, nil
}
