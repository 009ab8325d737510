package dialect

import (
	"strings"
)

// DatePartFunctions take a bare date-part keyword as first argument.
var DatePartFunctions = map[string]bool{
	"DATEADD":  true,
	"DATEDIFF": true,
	"DATEPART": true,
}

func functions(m map[string]FunctionRule) map[string]FunctionRule {
	out := map[string]FunctionRule{
		"ISNULL": rename("COALESCE"),
	}
	for k, v := range m {
		out[k] = v
	}
	return out
}

// rename keeps the arguments and changes the function name.
func rename(name string) FunctionRule {
	return func(args []string) string {
		return name + "(" + strings.Join(args, ", ") + ")"
	}
}

// constant ignores the arguments.
func constant(text string) FunctionRule {
	return func([]string) string { return text }
}

// swapped renders CHARINDEX(sub, str[, start]) as name(str, sub[, start]).
func swapped(name string) FunctionRule {
	return func(args []string) string {
		if len(args) < 2 {
			return name + "(" + strings.Join(args, ", ") + ")"
		}
		out := append([]string{args[1], args[0]}, args[2:]...)
		return name + "(" + strings.Join(out, ", ") + ")"
	}
}

// datePart normalizes date-part keywords and their abbreviations.
func datePart(s string) string {
	switch p := strings.ToUpper(strings.Trim(s, `"'`+"`")); p {
	case "YY", "YYYY", "YEAR":
		return "YEAR"
	case "QQ", "Q", "QUARTER":
		return "QUARTER"
	case "MM", "M", "MONTH":
		return "MONTH"
	case "WK", "WW", "WEEK":
		return "WEEK"
	case "DD", "D", "DAY", "DY", "DAYOFYEAR", "DW", "WEEKDAY":
		return "DAY"
	case "HH", "HOUR":
		return "HOUR"
	case "MI", "N", "MINUTE":
		return "MINUTE"
	case "SS", "S", "SECOND":
		return "SECOND"
	default:
		return p
	}
}

// dateAdd builds a DATEADD(part, n, date) rule from a renderer of the three
// normalized arguments.
func dateAdd(render func(part, n, date string) string) FunctionRule {
	return func(args []string) string {
		if len(args) != 3 {
			return "DATEADD(" + strings.Join(args, ", ") + ")"
		}
		return render(datePart(args[0]), args[1], args[2])
	}
}

var oracleFunctions = map[string]FunctionRule{
	"ISNULL":    rename("NVL"),
	"CHARINDEX": swapped("INSTR"),
	"GETDATE":   constant("SYSDATE"),
	"LEN":       rename("LENGTH"),
	"SUBSTRING": rename("SUBSTR"),
	"DATEADD": dateAdd(func(part, n, date string) string {
		switch part {
		case "YEAR":
			return "ADD_MONTHS(" + date + ", (" + n + ") * 12)"
		case "QUARTER":
			return "ADD_MONTHS(" + date + ", (" + n + ") * 3)"
		case "MONTH":
			return "ADD_MONTHS(" + date + ", " + n + ")"
		case "WEEK":
			return "(" + date + " + (" + n + ") * 7)"
		case "DAY":
			return "(" + date + " + (" + n + "))"
		}
		return "(" + date + " + NUMTODSINTERVAL(" + n + ", '" + part + "'))"
	}),
}

var mysqlFunctions = map[string]FunctionRule{
	"ISNULL": rename("IFNULL"),
	"CHARINDEX": func(args []string) string {
		if len(args) == 3 {
			return "LOCATE(" + strings.Join(args, ", ") + ")"
		}
		return swapped("INSTR")(args)
	},
	"GETDATE": constant("NOW()"),
	"LEN":     rename("CHAR_LENGTH"),
	"DATEADD": dateAdd(func(part, n, date string) string {
		return "DATE_ADD(" + date + ", INTERVAL " + n + " " + part + ")"
	}),
}

var postgresFunctions = map[string]FunctionRule{
	"CHARINDEX": swapped("STRPOS"),
	"GETDATE":   constant("NOW()"),
	"LEN":       rename("LENGTH"),
	"DATEADD": dateAdd(func(part, n, date string) string {
		return "(" + date + " + (" + n + ") * INTERVAL '1 " + part + "')"
	}),
}

var sqliteFunctions = map[string]FunctionRule{
	"ISNULL":    rename("IFNULL"),
	"CHARINDEX": swapped("INSTR"),
	"GETDATE":   constant("CURRENT_TIMESTAMP"),
	"LEN":       rename("LENGTH"),
	"SUBSTRING": rename("SUBSTR"),
	"DATEADD": dateAdd(func(part, n, date string) string {
		return "DATETIME(" + date + ", (" + n + ") || ' " + strings.ToLower(part) + "s')"
	}),
}
