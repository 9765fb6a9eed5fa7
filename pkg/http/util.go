package http

import (
	"time"

	xutil "SignalGuard/pkg/util"

	"github.com/labstack/echo/v4"
)

// QueryInt reads an integer query parameter, falling back to def and clamping to [lo, hi].
func QueryInt(c echo.Context, name string, def, lo, hi int) int {
	return xutil.ClampInt(xutil.ParseIntDefault(c.QueryParam(name), def), lo, hi)
}

// QueryTime reads an RFC3339 or unix-seconds query parameter.
func QueryTime(c echo.Context, name string, def time.Time) time.Time {
	return xutil.ParseTimeDefault(c.QueryParam(name), def)
}
