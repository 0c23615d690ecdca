package tools

import (
	"context"
	"fmt"

	"github.com/brookwillow/kiwi/pkg/vehicle"
)

var seatZones = []any{"driver", "passenger", "rear_left", "rear_right"}

// setFields is a shorthand for handlers that flip state fields and report a
// fixed message.
func setFields(message string, fields map[string]any) Handler {
	return func(_ context.Context, _ map[string]any, state *vehicle.Store) *Result {
		if err := state.SetAll(fields); err != nil {
			return Fail(err.Error())
		}
		return OK(message)
	}
}

// Catalog returns the built-in vehicle tool set. This is a representative
// slice of the full in-car catalog: every category is populated and every
// handler actually mutates or reads vehicle state.
func Catalog() []*Tool {
	var all []*Tool
	all = append(all, vehicleControlTools()...)
	all = append(all, climateTools()...)
	all = append(all, entertainmentTools()...)
	all = append(all, navigationTools()...)
	all = append(all, windowTools()...)
	all = append(all, seatTools()...)
	all = append(all, lightingTools()...)
	all = append(all, safetyTools()...)
	all = append(all, wiperTools()...)
	all = append(all, communicationTools()...)
	all = append(all, informationTools()...)
	return all
}

func vehicleControlTools() []*Tool {
	return []*Tool{
		{
			Name: "start_engine", Description: "启动发动机", Category: CategoryVehicleControl,
			Handler: func(_ context.Context, _ map[string]any, state *vehicle.Store) *Result {
				if state.Bool("engine_running") {
					return OK("发动机已经在运行中")
				}
				state.Set("engine_running", true)
				return OK("发动机已启动")
			},
		},
		{
			Name: "stop_engine", Description: "关闭发动机", Category: CategoryVehicleControl,
			Handler: func(_ context.Context, _ map[string]any, state *vehicle.Store) *Result {
				if state.Number("speed") > 0 {
					return Fail("车辆行驶中，无法关闭发动机")
				}
				state.Set("engine_running", false)
				return OK("发动机已关闭")
			},
		},
		{
			Name: "lock_vehicle", Description: "锁定车辆", Category: CategoryVehicleControl,
			Handler: setFields("车辆已锁定", map[string]any{"doors_locked": true}),
		},
		{
			Name: "unlock_vehicle", Description: "解锁车辆", Category: CategoryVehicleControl,
			Handler: setFields("车辆已解锁", map[string]any{"doors_locked": false}),
		},
		{
			Name: "set_driving_mode", Description: "设置驾驶模式", Category: CategoryVehicleControl,
			Parameters: []Parameter{{
				Name: "mode", Type: "string", Description: "驾驶模式", Required: true,
				Enum: []any{"comfort", "sport", "eco", "snow", "offroad"},
			}},
			Handler: func(_ context.Context, args map[string]any, state *vehicle.Store) *Result {
				mode := args["mode"].(string)
				state.Set("driving_mode", mode)
				return OK(fmt.Sprintf("已切换到%s模式", mode))
			},
		},
		{
			Name: "enable_cruise_control", Description: "开启定速巡航", Category: CategoryVehicleControl,
			Parameters: []Parameter{{
				Name: "speed", Type: "number", Description: "巡航速度 km/h", Required: true,
			}},
			Handler: func(_ context.Context, args map[string]any, state *vehicle.Store) *Result {
				speed := toFloat(args["speed"])
				if speed < 30 || speed > 150 {
					return Fail("巡航速度需在30-150 km/h之间")
				}
				state.SetAll(map[string]any{
					"cruise_control_enabled": true,
					"cruise_control_speed":   speed,
				})
				return OK(fmt.Sprintf("定速巡航已开启，速度%.0f km/h", speed))
			},
		},
		{
			Name: "disable_cruise_control", Description: "关闭定速巡航", Category: CategoryVehicleControl,
			Handler: setFields("定速巡航已关闭", map[string]any{
				"cruise_control_enabled": false,
				"cruise_control_speed":   0.0,
			}),
		},
	}
}

func climateTools() []*Tool {
	return []*Tool{
		{
			Name: "turn_on_ac", Description: "打开空调", Category: CategoryClimate,
			Handler: setFields("空调已打开", map[string]any{"ac_on": true}),
		},
		{
			Name: "turn_off_ac", Description: "关闭空调", Category: CategoryClimate,
			Handler: setFields("空调已关闭", map[string]any{"ac_on": false, "ac_max_mode": false}),
		},
		{
			Name: "set_temperature", Description: "设置分区温度", Category: CategoryClimate,
			Parameters: []Parameter{
				{Name: "zone", Type: "string", Description: "温度分区", Required: false, Default: "driver", Enum: seatZones},
				{Name: "temperature", Type: "number", Description: "目标温度（摄氏度）", Required: true},
			},
			Handler: func(_ context.Context, args map[string]any, state *vehicle.Store) *Result {
				zone := args["zone"].(string)
				temp := toFloat(args["temperature"])
				if temp < 16 || temp > 32 {
					return Fail("温度需在16-32度之间")
				}
				state.Set("temperature_"+zone, temp)
				return OK(fmt.Sprintf("%s温度已设置为%.1f度", zoneName(zone), temp))
			},
		},
		{
			Name: "set_fan_speed", Description: "设置风量", Category: CategoryClimate,
			Parameters: []Parameter{{
				Name: "speed", Type: "integer", Description: "风量档位 1-7", Required: true,
			}},
			Handler: func(_ context.Context, args map[string]any, state *vehicle.Store) *Result {
				speed := int(toFloat(args["speed"]))
				if speed < 1 || speed > 7 {
					return Fail("风量档位需在1-7之间")
				}
				state.Set("fan_speed", speed)
				return OK(fmt.Sprintf("风量已设置为%d档", speed))
			},
		},
		{
			Name: "enable_auto_climate", Description: "开启自动空调", Category: CategoryClimate,
			Handler: setFields("自动空调已开启", map[string]any{"auto_climate": true, "ac_on": true}),
		},
		{
			Name: "enable_defrost", Description: "开启除霜", Category: CategoryClimate,
			Parameters: []Parameter{{
				Name: "position", Type: "string", Description: "除霜位置", Required: false,
				Default: "front", Enum: []any{"front", "rear", "both"},
			}},
			Handler: func(_ context.Context, args map[string]any, state *vehicle.Store) *Result {
				pos := args["position"].(string)
				fields := map[string]any{}
				if pos == "front" || pos == "both" {
					fields["defrost_front"] = true
				}
				if pos == "rear" || pos == "both" {
					fields["defrost_rear"] = true
				}
				state.SetAll(fields)
				return OK("除霜已开启")
			},
		},
	}
}

func entertainmentTools() []*Tool {
	return []*Tool{
		{
			Name: "play_music", Description: "播放音乐，可指定歌曲和歌手", Category: CategoryEntertainment,
			Parameters: []Parameter{
				{Name: "song", Type: "string", Description: "歌曲名", Required: false},
				{Name: "artist", Type: "string", Description: "歌手名", Required: false},
			},
			Handler: func(_ context.Context, args map[string]any, state *vehicle.Store) *Result {
				song, _ := args["song"].(string)
				artist, _ := args["artist"].(string)
				state.SetAll(map[string]any{
					"music_playing":  true,
					"music_paused":   false,
					"current_song":   song,
					"current_artist": artist,
				})
				switch {
				case song != "" && artist != "":
					return OKData(fmt.Sprintf("正在播放%s的《%s》", artist, song),
						map[string]any{"song": song, "artist": artist})
				case song != "":
					return OKData(fmt.Sprintf("正在播放《%s》", song), map[string]any{"song": song})
				default:
					return OK("音乐已播放")
				}
			},
		},
		{
			Name: "pause_music", Description: "暂停音乐", Category: CategoryEntertainment,
			Handler: setFields("音乐已暂停", map[string]any{"music_paused": true}),
		},
		{
			Name: "set_volume", Description: "设置音量", Category: CategoryEntertainment,
			Parameters: []Parameter{{
				Name: "volume", Type: "integer", Description: "音量 0-100", Required: true,
			}},
			Handler: func(_ context.Context, args map[string]any, state *vehicle.Store) *Result {
				volume := int(toFloat(args["volume"]))
				if volume < 0 || volume > 100 {
					return Fail("音量需在0-100之间")
				}
				state.SetAll(map[string]any{"volume": volume, "muted": false})
				return OK(fmt.Sprintf("音量已设置为%d", volume))
			},
		},
		{
			Name: "mute_audio", Description: "静音", Category: CategoryEntertainment,
			Handler: setFields("已静音", map[string]any{"muted": true}),
		},
		{
			Name: "unmute_audio", Description: "取消静音", Category: CategoryEntertainment,
			Handler: setFields("已取消静音", map[string]any{"muted": false}),
		},
		{
			Name: "set_audio_source", Description: "切换音源", Category: CategoryEntertainment,
			Parameters: []Parameter{{
				Name: "source", Type: "string", Description: "音源", Required: true,
				Enum: []any{"bluetooth", "radio", "usb", "online"},
			}},
			Handler: func(_ context.Context, args map[string]any, state *vehicle.Store) *Result {
				source := args["source"].(string)
				state.Set("audio_source", source)
				return OK(fmt.Sprintf("音源已切换到%s", source))
			},
		},
	}
}

func navigationTools() []*Tool {
	return []*Tool{
		{
			Name: "navigate_to", Description: "导航到指定目的地", Category: CategoryNavigation,
			Parameters: []Parameter{{
				Name: "destination", Type: "string", Description: "目的地", Required: true,
			}},
			Handler: func(_ context.Context, args map[string]any, state *vehicle.Store) *Result {
				dest := args["destination"].(string)
				state.SetAll(map[string]any{
					"navigation_active":      true,
					"navigation_destination": dest,
				})
				return OKData(fmt.Sprintf("正在规划前往%s的路线", dest), map[string]any{"destination": dest})
			},
		},
		{
			Name: "cancel_navigation", Description: "取消导航", Category: CategoryNavigation,
			Handler: setFields("导航已取消", map[string]any{
				"navigation_active":      false,
				"navigation_destination": "",
			}),
		},
		{
			Name: "enable_voice_guidance", Description: "开启语音导航播报", Category: CategoryNavigation,
			Handler: setFields("语音播报已开启", map[string]any{"voice_guidance": true}),
		},
		{
			Name: "disable_voice_guidance", Description: "关闭语音导航播报", Category: CategoryNavigation,
			Handler: setFields("语音播报已关闭", map[string]any{"voice_guidance": false}),
		},
	}
}

func windowTools() []*Tool {
	return []*Tool{
		{
			Name: "open_window", Description: "打开车窗", Category: CategoryWindow,
			Parameters: []Parameter{
				{Name: "window", Type: "string", Description: "车窗位置", Required: true, Enum: seatZones},
				{Name: "percentage", Type: "integer", Description: "开启比例 0-100", Required: false, Default: 100},
			},
			Handler: func(_ context.Context, args map[string]any, state *vehicle.Store) *Result {
				window := args["window"].(string)
				pct := int(toFloat(args["percentage"]))
				if pct < 0 || pct > 100 {
					return Fail("开启比例需在0-100之间")
				}
				state.Set("window_"+window, pct)
				return OK(fmt.Sprintf("%s车窗已开启%d%%", zoneName(window), pct))
			},
		},
		{
			Name: "close_window", Description: "关闭车窗", Category: CategoryWindow,
			Parameters: []Parameter{{
				Name: "window", Type: "string", Description: "车窗位置", Required: true,
				Enum: append(append([]any{}, seatZones...), "all"),
			}},
			Handler: func(_ context.Context, args map[string]any, state *vehicle.Store) *Result {
				window := args["window"].(string)
				if window == "all" {
					state.SetAll(map[string]any{
						"window_driver": 0, "window_passenger": 0,
						"window_rear_left": 0, "window_rear_right": 0,
					})
					return OK("所有车窗已关闭")
				}
				state.Set("window_"+window, 0)
				return OK(fmt.Sprintf("%s车窗已关闭", zoneName(window)))
			},
		},
		{
			Name: "open_sunroof", Description: "打开天窗", Category: CategoryWindow,
			Parameters: []Parameter{{
				Name: "mode", Type: "string", Description: "打开方式", Required: false,
				Default: "slide", Enum: []any{"slide", "tilt"},
			}},
			Handler: func(_ context.Context, args map[string]any, state *vehicle.Store) *Result {
				if args["mode"].(string) == "tilt" {
					state.SetAll(map[string]any{"sunroof_tilted": true, "sunroof_position": 0})
					return OK("天窗已翘起")
				}
				state.SetAll(map[string]any{"sunroof_tilted": false, "sunroof_position": 100})
				return OK("天窗已打开")
			},
		},
		{
			Name: "close_sunroof", Description: "关闭天窗", Category: CategoryWindow,
			Handler: setFields("天窗已关闭", map[string]any{"sunroof_position": 0, "sunroof_tilted": false}),
		},
	}
}

func seatTools() []*Tool {
	return []*Tool{
		{
			Name: "enable_seat_heating", Description: "开启座椅加热", Category: CategorySeat,
			Parameters: []Parameter{
				{Name: "seat", Type: "string", Description: "座椅位置", Required: true, Enum: seatZones},
				{Name: "level", Type: "integer", Description: "加热档位 1-3", Required: false, Default: 2},
			},
			Handler: func(_ context.Context, args map[string]any, state *vehicle.Store) *Result {
				seat := args["seat"].(string)
				level := int(toFloat(args["level"]))
				if level < 1 || level > 3 {
					return Fail("加热档位需在1-3之间")
				}
				state.Set("seat_heating_"+seat, level)
				return OK(fmt.Sprintf("%s座椅加热已开启%d档", zoneName(seat), level))
			},
		},
		{
			Name: "enable_seat_ventilation", Description: "开启座椅通风", Category: CategorySeat,
			Parameters: []Parameter{
				{Name: "seat", Type: "string", Description: "座椅位置", Required: true,
					Enum: []any{"driver", "passenger"}},
				{Name: "level", Type: "integer", Description: "通风档位 1-3", Required: false, Default: 2},
			},
			Handler: func(_ context.Context, args map[string]any, state *vehicle.Store) *Result {
				seat := args["seat"].(string)
				level := int(toFloat(args["level"]))
				if level < 1 || level > 3 {
					return Fail("通风档位需在1-3之间")
				}
				state.Set("seat_ventilation_"+seat, level)
				return OK(fmt.Sprintf("%s座椅通风已开启%d档", zoneName(seat), level))
			},
		},
		{
			Name: "enable_seat_massage", Description: "开启座椅按摩", Category: CategorySeat,
			Parameters: []Parameter{{
				Name: "seat", Type: "string", Description: "座椅位置", Required: true,
				Enum: []any{"driver", "passenger"},
			}},
			Handler: func(_ context.Context, args map[string]any, state *vehicle.Store) *Result {
				seat := args["seat"].(string)
				state.Set("seat_massage_"+seat, true)
				return OK(fmt.Sprintf("%s座椅按摩已开启", zoneName(seat)))
			},
		},
	}
}

func lightingTools() []*Tool {
	return []*Tool{
		{
			Name: "turn_on_headlights", Description: "打开大灯", Category: CategoryLighting,
			Handler: setFields("大灯已打开", map[string]any{"headlights_on": true}),
		},
		{
			Name: "turn_off_headlights", Description: "关闭大灯", Category: CategoryLighting,
			Handler: setFields("大灯已关闭", map[string]any{"headlights_on": false, "high_beam": false}),
		},
		{
			Name: "set_headlight_mode", Description: "设置大灯模式", Category: CategoryLighting,
			Parameters: []Parameter{{
				Name: "mode", Type: "string", Description: "大灯模式", Required: true,
				Enum: []any{"auto", "on", "off"},
			}},
			Handler: func(_ context.Context, args map[string]any, state *vehicle.Store) *Result {
				mode := args["mode"].(string)
				state.SetAll(map[string]any{
					"headlight_mode": mode,
					"headlights_on":  mode == "on",
				})
				return OK(fmt.Sprintf("大灯模式已设置为%s", mode))
			},
		},
		{
			Name: "set_interior_brightness", Description: "设置车内氛围灯亮度", Category: CategoryLighting,
			Parameters: []Parameter{{
				Name: "brightness", Type: "integer", Description: "亮度 0-100", Required: true,
			}},
			Handler: func(_ context.Context, args map[string]any, state *vehicle.Store) *Result {
				brightness := int(toFloat(args["brightness"]))
				if brightness < 0 || brightness > 100 {
					return Fail("亮度需在0-100之间")
				}
				state.SetAll(map[string]any{
					"interior_brightness": brightness,
					"interior_lights_on":  brightness > 0,
				})
				return OK(fmt.Sprintf("氛围灯亮度已设置为%d", brightness))
			},
		},
		{
			Name: "set_ambient_light_color", Description: "设置氛围灯颜色", Category: CategoryAmbient,
			Parameters: []Parameter{{
				Name: "color", Type: "string", Description: "颜色", Required: true,
				Enum: []any{"white", "blue", "red", "green", "purple", "orange"},
			}},
			Handler: func(_ context.Context, args map[string]any, state *vehicle.Store) *Result {
				color := args["color"].(string)
				state.SetAll(map[string]any{"ambient_light_color": color, "interior_lights_on": true})
				return OK(fmt.Sprintf("氛围灯颜色已设置为%s", color))
			},
		},
		{
			Name: "enable_fragrance", Description: "开启香氛", Category: CategoryAmbient,
			Parameters: []Parameter{{
				Name: "intensity", Type: "integer", Description: "香氛浓度 1-5", Required: false, Default: 3,
			}},
			Handler: func(_ context.Context, args map[string]any, state *vehicle.Store) *Result {
				intensity := int(toFloat(args["intensity"]))
				if intensity < 1 || intensity > 5 {
					return Fail("香氛浓度需在1-5之间")
				}
				state.SetAll(map[string]any{"fragrance_on": true, "fragrance_intensity": intensity})
				return OK(fmt.Sprintf("香氛已开启，浓度%d档", intensity))
			},
		},
	}
}

func safetyTools() []*Tool {
	return []*Tool{
		{
			Name: "enable_lane_assist", Description: "开启车道保持辅助", Category: CategorySafety,
			Handler: setFields("车道保持辅助已开启", map[string]any{"lane_assist": true}),
		},
		{
			Name: "enable_autopilot", Description: "开启辅助驾驶", Category: CategoryADAS,
			Handler: func(_ context.Context, _ map[string]any, state *vehicle.Store) *Result {
				if !state.Bool("engine_running") {
					return Fail("发动机未启动，无法开启辅助驾驶")
				}
				state.Set("autopilot", true)
				return OK("辅助驾驶已开启")
			},
		},
		{
			Name: "disable_autopilot", Description: "关闭辅助驾驶", Category: CategoryADAS,
			Handler: setFields("辅助驾驶已关闭", map[string]any{"autopilot": false}),
		},
		{
			Name: "set_following_distance", Description: "设置跟车距离", Category: CategoryADAS,
			Parameters: []Parameter{{
				Name: "distance", Type: "integer", Description: "跟车距离档位 1-5", Required: true,
				Enum: []any{1, 2, 3, 4, 5},
			}},
			Handler: func(_ context.Context, args map[string]any, state *vehicle.Store) *Result {
				distance := int(toFloat(args["distance"]))
				state.Set("following_distance", distance)
				return OK(fmt.Sprintf("跟车距离已设置为%d档", distance))
			},
		},
	}
}

func wiperTools() []*Tool {
	return []*Tool{
		{
			Name: "enable_wipers", Description: "开启雨刷", Category: CategoryWiper,
			Parameters: []Parameter{{
				Name: "speed", Type: "string", Description: "雨刷速度", Required: false,
				Default: "auto", Enum: []any{"low", "medium", "high", "auto"},
			}},
			Handler: func(_ context.Context, args map[string]any, state *vehicle.Store) *Result {
				speed := args["speed"].(string)
				state.SetAll(map[string]any{"wipers_on": true, "wiper_speed": speed})
				return OK(fmt.Sprintf("雨刷已开启，速度%s", speed))
			},
		},
		{
			Name: "disable_wipers", Description: "关闭雨刷", Category: CategoryWiper,
			Handler: setFields("雨刷已关闭", map[string]any{"wipers_on": false}),
		},
	}
}

func communicationTools() []*Tool {
	return []*Tool{
		{
			Name: "make_call", Description: "拨打电话", Category: CategoryCommunication,
			Parameters: []Parameter{{
				Name: "contact", Type: "string", Description: "联系人", Required: true,
			}},
			Handler: func(_ context.Context, args map[string]any, state *vehicle.Store) *Result {
				contact := args["contact"].(string)
				if state.Bool("do_not_disturb") {
					return Fail("勿扰模式已开启，无法拨打电话")
				}
				state.SetAll(map[string]any{"phone_call_active": true, "phone_contact": contact})
				return OK(fmt.Sprintf("正在呼叫%s", contact))
			},
		},
		{
			Name: "end_call", Description: "挂断电话", Category: CategoryCommunication,
			Handler: setFields("通话已结束", map[string]any{"phone_call_active": false, "phone_contact": ""}),
		},
		{
			Name: "enable_do_not_disturb", Description: "开启勿扰模式", Category: CategoryCommunication,
			Handler: setFields("勿扰模式已开启", map[string]any{"do_not_disturb": true}),
		},
	}
}

func informationTools() []*Tool {
	return []*Tool{
		{
			Name: "get_vehicle_status", Description: "查询车辆状态", Category: CategoryInformation,
			Handler: func(_ context.Context, _ map[string]any, state *vehicle.Store) *Result {
				return OKData("车辆状态已查询", map[string]any{
					"engine_running": state.Bool("engine_running"),
					"fuel_level":     state.Number("fuel_level"),
					"battery_level":  state.Number("battery_level"),
					"range_km":       state.Number("range_km"),
					"doors_locked":   state.Bool("doors_locked"),
				})
			},
		},
		{
			Name: "get_range", Description: "查询续航里程", Category: CategoryInformation,
			Handler: func(_ context.Context, _ map[string]any, state *vehicle.Store) *Result {
				rangeKM := state.Number("range_km")
				return OKData(fmt.Sprintf("当前续航%.0f公里", rangeKM), map[string]any{"range_km": rangeKM})
			},
		},
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func zoneName(zone string) string {
	switch zone {
	case "driver":
		return "主驾驶"
	case "passenger":
		return "副驾驶"
	case "rear_left":
		return "左后"
	case "rear_right":
		return "右后"
	}
	return zone
}
