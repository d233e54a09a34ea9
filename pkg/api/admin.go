package api

import (
	"net/http"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/tidwall/gjson"

	"github.com/jdziat/agent-escrow/pkg/core"
	"github.com/jdziat/agent-escrow/pkg/security"
)

// SettingUpdate is the body of PUT /v1/admin/{setting}. Value is an address
// for router and owner, a number for subscription and gas-limit, and a
// string for network.
type SettingUpdate struct {
	Value any `json:"value"`
}

func (s *server) handleAdmin(w http.ResponseWriter, r *http.Request, caller common.Address, body []byte) {
	if !gjson.ValidBytes(body) {
		writeErrorStatus(w, http.StatusBadRequest, "invalid setting body")
		return
	}
	value := gjson.GetBytes(body, "value")
	ctx := r.Context()

	var (
		st  *core.Settings
		err error
	)
	switch setting := mux.Vars(r)["setting"]; setting {
	case "router":
		var addr common.Address
		if addr, err = addressValue(value); err == nil {
			st, err = s.admin.SetRouter(ctx, caller, addr)
		}
	case "owner":
		var addr common.Address
		if addr, err = addressValue(value); err == nil {
			st, err = s.admin.TransferOwnership(ctx, caller, addr)
		}
	case "subscription":
		var n uint64
		if n, err = uintValue(value, 64); err == nil {
			st, err = s.admin.SetSubscriptionID(ctx, caller, n)
		}
	case "gas-limit":
		var n uint64
		if n, err = uintValue(value, 32); err == nil {
			st, err = s.admin.SetCallbackGasLimit(ctx, caller, uint32(n))
		}
	case "network":
		if value.Type != gjson.String {
			err = errorsmod.Wrap(core.ErrInvalidSetting, "network must be a string")
		} else {
			st, err = s.admin.SetNetworkID(ctx, caller, value.String())
		}
	default:
		writeErrorStatus(w, http.StatusNotFound, "unknown setting "+setting)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *server) handleSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.admin.Settings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func addressValue(v gjson.Result) (common.Address, error) {
	if v.Type != gjson.String {
		return common.Address{}, errorsmod.Wrap(core.ErrInvalidSetting, "value must be an address string")
	}
	if err := security.ValidateAddress(v.String()); err != nil {
		return common.Address{}, errorsmod.Wrap(core.ErrInvalidSetting, err.Error())
	}
	return common.HexToAddress(v.String()), nil
}

func uintValue(v gjson.Result, bits int) (uint64, error) {
	if v.Type != gjson.Number {
		return 0, errorsmod.Wrap(core.ErrInvalidSetting, "value must be a number")
	}
	n := v.Uint()
	if float64(n) != v.Num || (bits < 64 && n >= 1<<uint(bits)) {
		return 0, errorsmod.Wrapf(core.ErrInvalidSetting, "value %s out of range", v.Raw)
	}
	return n, nil
}
