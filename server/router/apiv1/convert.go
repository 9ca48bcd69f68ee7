package apiv1

import "strconv"

func itoa(id int32) string {
	return strconv.FormatInt(int64(id), 10)
}

func atoi32(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}
